package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NoReplyPlaceholder is returned in place of text when the backend answers
// with no choices.
const NoReplyPlaceholder = "（灯似乎陷入了沉默，没有给出回复...）"

// ErrBackendUnavailable wraps every transport, auth, timeout and API failure.
var ErrBackendUnavailable = errors.New("backend unavailable")

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

type Message struct {
	Role    string
	Content string
}

// Completer runs one blocking, non-streaming completion over an ordered
// conversation that begins with a single system message.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// unavailable wraps a cause so errors.Is matches both ErrBackendUnavailable
// and the underlying error.
func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, fmt.Errorf(format, args...))
}
