package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bowerhall/lantern/internal/conversation"
	"github.com/bowerhall/lantern/internal/signature"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func seedStore(t *testing.T, backend, path string, sender string, n int) {
	t.Helper()

	store, err := openStore(backend, path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for i := 1; i <= n; i++ {
		turn := conversation.Turn{User: "q" + string(rune('0'+i)), AI: "a" + string(rune('0'+i))}
		if err := store.Append(sender, turn); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	seedStore(t, "file", path, "user-a", 3)

	out, err := execute(t, "history", "--db", path, "user-a")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}

	for _, want := range []string{"user: q1", "ai:   a1", "user: q3", "ai:   a3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCommandLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lantern.db")
	seedStore(t, "sqlite", path, "user-a", 4)

	out, err := execute(t, "history", "--store", "sqlite", "--db", path, "-n", "2", "user-a")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}

	if strings.Contains(out, "q2") || !strings.Contains(out, "q3") || !strings.Contains(out, "q4") {
		t.Errorf("expected only the last two turns:\n%s", out)
	}
}

func TestHistoryCommandUnknownSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")

	out, err := execute(t, "history", "--db", path, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No history for nobody.") {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryCommandCorruptStore(t *testing.T) {
	tests := []struct {
		backend string
		file    string
	}{
		{"file", "database.json"},
		{"sqlite", "lantern.db"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte("not a store"), 0o600); err != nil {
				t.Fatal(err)
			}

			if _, err := execute(t, "history", "--store", tt.backend, "--db", path, "user-a"); err == nil {
				t.Error("expected corruption to be reported")
			}

			if _, err := os.Stat(path + ".corrupt"); !os.IsNotExist(err) {
				t.Error("history must not move the store file")
			}
			if data, _ := os.ReadFile(path); string(data) != "not a store" {
				t.Errorf("store file changed: %q", data)
			}
		})
	}
}

func TestOpenStoreCorruptSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lantern.db")
	if err := os.WriteFile(path, []byte(strings.Repeat("not sqlite ", 12)), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := openStore("sqlite", path)
	if err != nil {
		t.Fatalf("corrupt sqlite store should open empty, got %v", err)
	}
	defer store.Close()

	if len(store.Senders()) != 0 {
		t.Error("expected empty store")
	}
}

func TestSignCommand(t *testing.T) {
	out, err := execute(t, "sign", "--token", "tok", "1700000000", "abc")
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	want := signature.Sign("tok", "1700000000", "abc")
	if strings.TrimSpace(out) != want {
		t.Errorf("sign = %q, want %q", out, want)
	}
}

func TestSignCommandRequiresToken(t *testing.T) {
	t.Setenv("WECHAT_TOKEN", "")

	if _, err := execute(t, "sign", "1", "2"); err == nil {
		t.Error("expected error without token")
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	if _, err := openStore("redis", "x"); err == nil {
		t.Error("expected error for unknown backend")
	}
}
