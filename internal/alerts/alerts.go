package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/lantern/internal/logger"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

// Sink delivers an alert text to an operator channel.
type Sink interface {
	Notify(text string) error
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(text string) error

func (f SinkFunc) Notify(text string) error { return f(text) }

type Alerter struct {
	mu        sync.Mutex
	sinks     []Sink
	cooldowns map[string]time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func New(cooldown time.Duration, sinks ...Sink) *Alerter {
	return &Alerter{
		sinks:     sinks,
		cooldowns: make(map[string]time.Time),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Enabled reports whether any sink is configured.
func (a *Alerter) Enabled() bool {
	return a != nil && len(a.sinks) > 0
}

func (a *Alerter) Alert(severity Severity, component, message string, err error) {
	if !a.Enabled() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := fmt.Sprintf("%s:%s", component, message)
	now := a.now()

	if lastSent, ok := a.cooldowns[key]; ok {
		if now.Sub(lastSent) < a.cooldown {
			logger.Debug("alert suppressed (cooldown)", "component", component, "message", message)
			return
		}
	}

	var text string
	switch severity {
	case SeverityCritical:
		text = fmt.Sprintf("🚨 %s: %s", component, message)
	case SeverityWarn:
		text = fmt.Sprintf("⚠️ %s: %s", component, message)
	default:
		text = fmt.Sprintf("ℹ️ %s: %s", component, message)
	}

	if err != nil {
		text += fmt.Sprintf("\n\nError: %v", err)
	}

	delivered := false
	for _, sink := range a.sinks {
		if err := sink.Notify(text); err != nil {
			logger.Warn("alert delivery failed", "component", component, "error", err)
			continue
		}
		delivered = true
	}

	if delivered {
		a.cooldowns[key] = now
		logger.Info("alert sent", "component", component, "severity", severity)
	}
}

func (a *Alerter) Critical(component, message string, err error) {
	a.Alert(SeverityCritical, component, message, err)
}

func (a *Alerter) Warn(component, message string, err error) {
	a.Alert(SeverityWarn, component, message, err)
}
