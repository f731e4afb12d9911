// Package bookmark keeps the persisted set of bookmarked knowledge cards,
// each annotated with the question that produced it.
package bookmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kalambet/askcards/internal/card"
	"github.com/kalambet/askcards/internal/conversation"
	"github.com/kalambet/askcards/internal/storage"
)

// StorageKey is the persistence key of the bookmark collection.
const StorageKey = "bookmarks"

// Uncategorized is the question of bookmarks whose origin could not be traced.
const Uncategorized = conversation.Uncategorized

// Entry is a bookmarked card. Question is resolved once, when the bookmark
// is created, and never recomputed.
type Entry struct {
	card.Card
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
}

// Group is one question with its bookmarks, most recent first.
type Group struct {
	Question string  `json:"question"`
	Entries  []Entry `json:"bookmarks"`
}

// KV is the persistence substrate. Implemented by storage.Store.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// QuestionResolver finds the user question behind a card.
// Implemented by conversation.Log.
type QuestionResolver interface {
	ResolveQuestionFor(c card.Card) string
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp new bookmarks.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger overrides the logger used for persistence diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the bookmark collection. Safe for concurrent use.
type Store struct {
	kv       KV
	resolver QuestionResolver
	clock    Clock
	logger   *slog.Logger

	mu      sync.Mutex
	entries []Entry
}

// Load reads the persisted bookmarks once. A missing key yields an empty store.
func Load(kv KV, resolver QuestionResolver, opts ...Option) (*Store, error) {
	s := &Store{
		kv:       kv,
		resolver: resolver,
		clock:    realClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := kv.Get(StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading bookmarks: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &s.entries); err != nil {
		return nil, fmt.Errorf("decoding bookmarks: %w", err)
	}
	return s, nil
}

// IsBookmarked reports whether a card with the same identity is stored.
func (s *Store) IsBookmarked(c card.Card) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(c) >= 0
}

// Toggle removes the bookmark for c if present, otherwise creates one with
// the question resolved from the conversation log and the current time.
// It reports whether c is bookmarked afterwards. The whole collection is
// persisted on every call; a persistence error is returned but the
// in-memory change is kept.
func (s *Store) Toggle(c card.Card) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	if i := s.indexOf(c); i >= 0 {
		s.entries = slices.Delete(s.entries, i, i+1)
	} else {
		s.entries = append(s.entries, Entry{
			Card:      c,
			Timestamp: s.clock.Now().UTC(),
			Question:  s.resolver.ResolveQuestionFor(c),
		})
		added = true
	}

	if err := s.persist(); err != nil {
		s.logger.Warn("bookmark: persisting collection failed", "card", card.IdentityOf(c).String(), "error", err)
		return added, err
	}
	return added, nil
}

// All returns every bookmark in insertion order.
func (s *Store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Len returns the number of bookmarks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// GroupedByQuestion partitions bookmarks by question. Each group is ordered
// by timestamp, most recent first; equal timestamps keep insertion order.
func (s *Store) GroupedByQuestion() map[string][]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grouped()
}

// OrderedGroupKeys returns the questions ordered by the most recent bookmark
// in each group, descending. Groups with equal maxima keep the order in
// which they were first bookmarked.
func (s *Store) OrderedGroupKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedKeys()
}

// Groups returns OrderedGroupKeys paired with their GroupedByQuestion entries.
func (s *Store) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	grouped := s.grouped()
	keys := s.orderedKeys()
	out := make([]Group, len(keys))
	for i, q := range keys {
		out[i] = Group{Question: q, Entries: grouped[q]}
	}
	return out
}

func (s *Store) grouped() map[string][]Entry {
	groups := make(map[string][]Entry)
	for _, e := range s.entries {
		groups[e.Question] = append(groups[e.Question], e)
	}
	for _, g := range groups {
		slices.SortStableFunc(g, func(a, b Entry) int {
			return b.Timestamp.Compare(a.Timestamp)
		})
	}
	return groups
}

func (s *Store) orderedKeys() []string {
	type groupInfo struct {
		latest time.Time
		first  int
	}
	info := make(map[string]*groupInfo)
	var keys []string
	for i, e := range s.entries {
		g, ok := info[e.Question]
		if !ok {
			info[e.Question] = &groupInfo{latest: e.Timestamp, first: i}
			keys = append(keys, e.Question)
			continue
		}
		if e.Timestamp.After(g.latest) {
			g.latest = e.Timestamp
		}
	}
	slices.SortStableFunc(keys, func(a, b string) int {
		if c := info[b].latest.Compare(info[a].latest); c != 0 {
			return c
		}
		return info[a].first - info[b].first
	})
	return keys
}

func (s *Store) indexOf(c card.Card) int {
	for i, e := range s.entries {
		if e.Card.SameAs(c) {
			return i
		}
	}
	return -1
}

func (s *Store) persist() error {
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding bookmarks: %w", err)
	}
	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		return fmt.Errorf("persisting bookmarks: %w", err)
	}
	return nil
}
