// Package relay turns webhook requests into replies: it answers handshakes,
// replays recent history into a prompt, calls the backend and records the
// resulting turn.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bowerhall/lantern/internal/conversation"
	"github.com/bowerhall/lantern/internal/llm"
	"github.com/bowerhall/lantern/internal/logger"
	"github.com/bowerhall/lantern/internal/signature"
	"github.com/bowerhall/lantern/internal/wechat"
)

const (
	RejectMissing   = "Invalid access attempt."
	RejectSignature = "Signcheck failed."

	// FallbackReply is sent when the backend cannot produce an answer.
	FallbackReply = "（系统正在努力处理中，请稍后再试...）"

	DefaultPersona = "你叫高松燈，是一位内向、敏感、说话轻柔的女孩。请用简短、真诚的中文回复。"

	ContentTypeXML  = "application/xml; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

var ErrHandshakeRejected = errors.New("handshake rejected")

// Alerter receives operator-facing failure notices.
type Alerter interface {
	Critical(component, message string, err error)
}

// PendingExchange is one in-flight turn. It is dropped once the reply is
// rendered.
type PendingExchange struct {
	ID          string
	SenderID    string
	RecipientID string
	UserText    string
}

type Relay struct {
	token   string
	store   *conversation.Store
	backend llm.Completer
	persona string
	alerts  Alerter
	now     func() time.Time
}

type Option func(*Relay)

func WithPersona(persona string) Option {
	return func(r *Relay) {
		if persona != "" {
			r.persona = persona
		}
	}
}

func WithAlerter(a Alerter) Option {
	return func(r *Relay) { r.alerts = a }
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func New(token string, store *conversation.Store, backend llm.Completer, opts ...Option) *Relay {
	r := &Relay{
		token:   token,
		store:   store,
		backend: backend,
		persona: DefaultPersona,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Handshake answers the platform's server validation request. It returns
// echostr on a valid signature and a fixed rejection string otherwise.
func (r *Relay) Handshake(sig, timestamp, nonce, echostr string) string {
	if sig == "" || timestamp == "" || nonce == "" || echostr == "" {
		logger.Warn("handshake missing parameters")
		return RejectMissing
	}

	if err := r.checkSignature(sig, timestamp, nonce); err != nil {
		logger.Warn("handshake failed", "error", err, "timestamp", timestamp)
		return RejectSignature
	}

	logger.Info("handshake accepted")
	return echostr
}

func (r *Relay) checkSignature(sig, timestamp, nonce string) error {
	if !signature.Verify(r.token, timestamp, nonce, sig) {
		return ErrHandshakeRejected
	}
	return nil
}

// HandleMessage processes one inbound envelope and always returns a body the
// platform accepts: a text reply envelope, or the plain acknowledgment.
func (r *Relay) HandleMessage(ctx context.Context, body []byte) (reply []byte, contentType string) {
	msg, err := wechat.Decode(body)
	if err != nil {
		logger.Warn("inbound envelope rejected", "error", err)
		return []byte(wechat.Acknowledge), ContentTypeText
	}

	if !msg.IsText() {
		logger.Debug("non-text message acknowledged", "sender", msg.SenderID(), "type", msg.MsgType)
		return []byte(wechat.Acknowledge), ContentTypeText
	}

	ex := &PendingExchange{
		ID:          uuid.New().String()[:8],
		SenderID:    msg.SenderID(),
		RecipientID: msg.RecipientID(),
		UserText:    msg.Content,
	}

	logger.Info("message received",
		"exchange", ex.ID,
		"sender", ex.SenderID,
		"msg_id", msg.MsgID,
		"text", logger.Truncate(ex.UserText, 50),
	)

	text := r.exchange(ctx, ex)

	out, err := wechat.Encode(ex.SenderID, ex.RecipientID, text, r.now())
	if err != nil {
		logger.Error("reply encoding failed", "exchange", ex.ID, "error", err)
		return []byte(wechat.Acknowledge), ContentTypeText
	}

	return out, ContentTypeXML
}

// exchange runs the backend call and records the turn, returning the text to
// send. Any failure yields FallbackReply with history untouched.
func (r *Relay) exchange(ctx context.Context, ex *PendingExchange) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("exchange panicked", "exchange", ex.ID, "panic", rec)
			r.alert(fmt.Errorf("panic: %v", rec))
			text = FallbackReply
		}
	}()

	history := r.store.RecentTurns(ex.SenderID, conversation.HistoryWindow)
	prompt := BuildPrompt(r.persona, history, ex.UserText)

	logger.Debug("calling backend", "exchange", ex.ID, "messages", len(prompt))

	// a started backend call runs to completion even if the platform gives up on us
	start := time.Now()
	reply, err := r.backend.Complete(context.WithoutCancel(ctx), prompt)
	if err != nil {
		logger.Error("backend failed", "exchange", ex.ID, "sender", ex.SenderID, "error", err, "elapsed", time.Since(start))
		r.alert(err)
		return FallbackReply
	}

	logger.Info("backend replied", "exchange", ex.ID, "chars", len([]rune(reply)), "elapsed", time.Since(start))

	// flush failures are logged by the store; the reply still goes out
	_ = r.store.Append(ex.SenderID, conversation.Turn{User: ex.UserText, AI: reply})

	return reply
}

func (r *Relay) alert(err error) {
	if r.alerts != nil {
		r.alerts.Critical("backend", "completion failed", err)
	}
}

// BuildPrompt lays out the persona, the prior turns as user/assistant pairs,
// and the current user text, in that order.
func BuildPrompt(persona string, history []conversation.Turn, userText string) []llm.Message {
	messages := make([]llm.Message, 0, 2+2*len(history))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: persona})

	for _, turn := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.User},
			llm.Message{Role: llm.RoleAssistant, Content: turn.AI},
		)
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: userText})
}
