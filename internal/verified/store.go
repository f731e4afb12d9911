// Package verified stores user-named snapshots of whole conversations and
// renders them for export.
package verified

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/askcards/internal/conversation"
	"github.com/kalambet/askcards/internal/storage"
)

// StorageKey is the persistence key of the verified conversation collection.
const StorageKey = "verifiedConversations"

var (
	// ErrEmptyTitle is returned by Save when the title is blank.
	ErrEmptyTitle = errors.New("title is required")
	// ErrNotFound is returned when no conversation has the requested id.
	ErrNotFound = errors.New("conversation not found")
)

// Conversation is a saved transcript. Messages is a snapshot and is never
// affected by later changes to the live log.
type Conversation struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Messages  []conversation.Message `json:"messages"`
	Timestamp time.Time              `json:"timestamp"`
}

// KV is the persistence substrate. Implemented by storage.Store.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Snapshotter yields the messages to save. Implemented by conversation.Log.
type Snapshotter interface {
	SnapshotExcludingSeedGreeting() []conversation.Message
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp saved conversations.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDFunc overrides id generation.
func WithIDFunc(fn func() (string, error)) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLogger overrides the logger used for persistence diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// newUUIDv7 returns a time-ordered UUID.
func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Store is the verified conversation collection. Safe for concurrent use.
type Store struct {
	kv     KV
	clock  Clock
	newID  func() (string, error)
	logger *slog.Logger

	mu            sync.Mutex
	conversations []Conversation
}

// Load reads the persisted conversations once. A missing key yields an empty store.
func Load(kv KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:     kv,
		clock:  realClock{},
		newID:  newUUIDv7,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := kv.Get(StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading verified conversations: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &s.conversations); err != nil {
		return nil, fmt.Errorf("decoding verified conversations: %w", err)
	}
	return s, nil
}

// Save snapshots src under title. A blank title returns ErrEmptyTitle and
// changes nothing. The title is stored trimmed.
func (s *Store) Save(title string, src Snapshotter) (Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Conversation{}, ErrEmptyTitle
	}

	id, err := s.newID()
	if err != nil {
		return Conversation{}, fmt.Errorf("generating conversation id: %w", err)
	}

	c := Conversation{
		ID:        id,
		Title:     title,
		Messages:  conversation.CloneMessages(src.SnapshotExcludingSeedGreeting()),
		Timestamp: s.clock.Now().UTC(),
	}
	if c.Messages == nil {
		c.Messages = []conversation.Message{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = append(s.conversations, c)
	if err := s.persist(); err != nil {
		s.logger.Warn("verified: persisting collection failed", "id", id, "error", err)
		return cloneConversation(c), err
	}
	return cloneConversation(c), nil
}

// Delete removes the conversation with id. Deleting a missing id is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	s.conversations = slices.Delete(s.conversations, i, i+1)
	if err := s.persist(); err != nil {
		s.logger.Warn("verified: persisting collection failed", "id", id, "error", err)
		return err
	}
	return nil
}

// Get returns the conversation with id, or ErrNotFound.
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Conversation{}, ErrNotFound
	}
	return cloneConversation(s.conversations[i]), nil
}

// List returns all conversations, most recently saved first. The order is
// computed on every call; the stored order is insertion order.
func (s *Store) List() []Conversation {
	s.mu.Lock()
	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = cloneConversation(c)
	}
	s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b Conversation) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *Store) indexOf(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persist() error {
	convs := s.conversations
	if convs == nil {
		convs = []Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("encoding verified conversations: %w", err)
	}
	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		return fmt.Errorf("persisting verified conversations: %w", err)
	}
	return nil
}

func cloneConversation(c Conversation) Conversation {
	c.Messages = conversation.CloneMessages(c.Messages)
	return c
}
