package alerts

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type recorder struct {
	texts []string
	err   error
}

func (r *recorder) Notify(text string) error {
	if r.err != nil {
		return r.err
	}
	r.texts = append(r.texts, text)
	return nil
}

func TestAlertFormatting(t *testing.T) {
	rec := &recorder{}
	a := New(time.Hour, rec)

	a.Critical("backend", "completion failed", errors.New("timeout"))

	if len(rec.texts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(rec.texts))
	}
	if !strings.Contains(rec.texts[0], "backend: completion failed") || !strings.Contains(rec.texts[0], "Error: timeout") {
		t.Errorf("unexpected alert text: %q", rec.texts[0])
	}
}

func TestAlertCooldown(t *testing.T) {
	rec := &recorder{}
	a := New(time.Hour, rec)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.Critical("backend", "completion failed", nil)
	a.Critical("backend", "completion failed", nil)
	a.Warn("store", "flush failed", nil)

	if len(rec.texts) != 2 {
		t.Fatalf("expected duplicate to be suppressed, got %d alerts", len(rec.texts))
	}

	now = now.Add(2 * time.Hour)
	a.Critical("backend", "completion failed", nil)

	if len(rec.texts) != 3 {
		t.Errorf("expected alert after cooldown, got %d", len(rec.texts))
	}
}

func TestAlertFailedDeliveryNotCooledDown(t *testing.T) {
	rec := &recorder{err: errors.New("offline")}
	a := New(time.Hour, rec)

	a.Critical("backend", "x", nil)
	rec.err = nil
	a.Critical("backend", "x", nil)

	if len(rec.texts) != 1 {
		t.Errorf("a failed delivery should not start the cooldown, got %d", len(rec.texts))
	}
}

func TestAlerterWithoutSinks(t *testing.T) {
	var nilAlerter *Alerter
	nilAlerter.Critical("x", "y", nil)

	a := New(time.Hour)
	if a.Enabled() {
		t.Error("alerter with no sinks should be disabled")
	}
	a.Critical("x", "y", nil)
}

func TestSinkFunc(t *testing.T) {
	var got string
	a := New(time.Minute, SinkFunc(func(text string) error {
		got = text
		return nil
	}))

	a.Warn("store", "flush failed", nil)

	if !strings.Contains(got, "store: flush failed") {
		t.Errorf("sink func not called: %q", got)
	}
}

func TestParseWebhookURL(t *testing.T) {
	tests := []struct {
		raw       string
		id, token string
		wantErr   bool
	}{
		{"https://discord.com/api/webhooks/123/abc", "123", "abc", false},
		{"https://discordapp.com/api/webhooks/9/tok-en/", "9", "tok-en", false},
		{"https://discord.com/api/other/1/2", "", "", true},
		{"https://discord.com/api/webhooks/only-id", "", "", true},
	}

	for _, tt := range tests {
		id, token, err := parseWebhookURL(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v", tt.raw, err)
			continue
		}
		if id != tt.id || token != tt.token {
			t.Errorf("%s: got %s/%s", tt.raw, id, token)
		}
	}
}
