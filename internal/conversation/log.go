// Package conversation holds the ordered message log of the active session.
package conversation

import (
	"sync"

	"github.com/kalambet/askcards/internal/card"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Uncategorized is the question recorded for a card whose originating
// user question cannot be found in the log.
const Uncategorized = "uncategorized"

// DefaultGreeting seeds every new log.
const DefaultGreeting = "Hello! Ask me anything and I'll answer with related knowledge cards."

// Message is one entry of the log. Cards is only meaningful for assistant messages.
type Message struct {
	Role    Role        `json:"role"`
	Content string      `json:"content"`
	Cards   []card.Card `json:"cards"`
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message. A nil card list is stored as empty.
func AssistantMessage(content string, cards []card.Card) Message {
	if cards == nil {
		cards = []card.Card{}
	}
	return Message{Role: RoleAssistant, Content: content, Cards: cards}
}

// HasCard reports whether m carries a card with the same identity as c.
func (m Message) HasCard(c card.Card) bool {
	for _, mc := range m.Cards {
		if mc.SameAs(c) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Cards != nil {
		cards := make([]card.Card, len(m.Cards))
		copy(cards, m.Cards)
		m.Cards = cards
	}
	return m
}

// CloneMessages deep-copies a message sequence.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Log is the append-only message sequence of a session. It starts with a
// single assistant greeting. Safe for concurrent use.
type Log struct {
	greeting Message

	mu        sync.RWMutex
	messages  []Message
	observers []func(Message)
}

// NewLog creates a log seeded with greeting (DefaultGreeting when empty).
func NewLog(greeting string) *Log {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	g := AssistantMessage(greeting, nil)
	return &Log{
		greeting: g,
		messages: []Message{g.Clone()},
	}
}

// OnAppend registers fn to be called with every appended message.
// Observers run after the log lock is released, in registration order.
func (l *Log) OnAppend(fn func(Message)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Append adds m to the end of the log.
func (l *Log) Append(m Message) {
	m = m.Clone()

	l.mu.Lock()
	l.messages = append(l.messages, m)
	observers := make([]func(Message), len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(m.Clone())
	}
}

// Messages returns a copy of all messages in order.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return CloneMessages(l.messages)
}

// Len returns the number of messages, greeting included.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Last returns the most recent message.
func (l *Log) Last() Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.messages[len(l.messages)-1].Clone()
}

// History returns the contents of every message, both roles, in log order.
func (l *Log) History() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.messages))
	for i, m := range l.messages {
		out[i] = m.Content
	}
	return out
}

// ResolveQuestionFor finds the user question that produced c: the nearest
// user message preceding the most recent assistant message carrying c.
// Returns Uncategorized when no assistant message carries c or no user
// message precedes it.
func (l *Log) ResolveQuestionFor(c card.Card) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.messages) - 1; i >= 0; i-- {
		m := l.messages[i]
		if m.Role != RoleAssistant || !m.HasCard(c) {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if l.messages[j].Role == RoleUser {
				return l.messages[j].Content
			}
		}
		return Uncategorized
	}
	return Uncategorized
}

// SnapshotExcludingSeedGreeting returns a deep copy of the log without the
// seed greeting, when the greeting is still in place and unmodified.
func (l *Log) SnapshotExcludingSeedGreeting() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	msgs := l.messages
	if len(msgs) > 0 && l.isSeedGreeting(msgs[0]) {
		msgs = msgs[1:]
	}
	out := CloneMessages(msgs)
	if out == nil {
		out = []Message{}
	}
	return out
}

func (l *Log) isSeedGreeting(m Message) bool {
	return m.Role == l.greeting.Role && m.Content == l.greeting.Content && len(m.Cards) == 0
}
