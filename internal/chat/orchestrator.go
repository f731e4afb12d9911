// Package chat drives one question/answer turn at a time against the
// answering service and records both sides in the conversation log.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/askcards/internal/answer"
	"github.com/kalambet/askcards/internal/conversation"
)

// FallbackMessage replaces the answer when the service cannot be reached or
// its reply cannot be used.
const FallbackMessage = "⚠️ An error occurred. Please try again."

// State is the orchestrator's request state.
type State int

const (
	Idle State = iota
	Waiting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// Answerer sends the message history to the answering service.
// Implemented by answer.Client.
type Answerer interface {
	Query(ctx context.Context, history []string) (answer.Response, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the logger used for query diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator allows at most one outstanding query. Safe for concurrent use.
type Orchestrator struct {
	log    *conversation.Log
	svc    Answerer
	logger *slog.Logger

	mu    sync.Mutex
	state State
	input string
}

// New creates an idle orchestrator appending to log.
func New(log *conversation.Log, svc Answerer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:    log,
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current request state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetInput replaces the input buffer.
func (o *Orchestrator) SetInput(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.input = s
}

// Input returns the input buffer.
func (o *Orchestrator) Input() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input
}

// SubmitInput submits the current input buffer. The buffer is cleared only
// when the submission is accepted.
func (o *Orchestrator) SubmitInput(ctx context.Context) (conversation.Message, bool) {
	return o.Submit(ctx, o.Input())
}

// Submit sends text as the next user turn and blocks until the reply (or the
// fallback message) has been appended to the log. The appended reply is
// returned; other turns may follow it in the log by the time Submit returns.
// It returns false without doing anything when text is blank or another
// query is outstanding.
//
// The outbound history is every message content already in the log followed
// by text. Service errors are logged, never returned.
func (o *Orchestrator) Submit(ctx context.Context, text string) (conversation.Message, bool) {
	if strings.TrimSpace(text) == "" {
		return conversation.Message{}, false
	}

	o.mu.Lock()
	if o.state == Waiting {
		o.mu.Unlock()
		return conversation.Message{}, false
	}
	o.state = Waiting
	o.input = ""
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state = Idle
		o.mu.Unlock()
	}()

	history := append(o.log.History(), text)
	o.log.Append(conversation.UserMessage(text))

	var reply conversation.Message
	resp, err := o.svc.Query(ctx, history)
	if err != nil {
		o.logger.Error("chat: query failed", "error", err, "turns", len(history))
		reply = conversation.AssistantMessage(FallbackMessage, nil)
	} else {
		o.logger.Debug("chat: answer received", "cards", len(resp.Cards))
		reply = conversation.AssistantMessage(resp.Answer, resp.Cards)
	}
	o.log.Append(reply)
	return reply.Clone(), true
}
