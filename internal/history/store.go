// Package history keeps the bounded list of saved conversations and flushes
// it through a best-effort Persister.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/chatgate/pkg/conversation"
)

// DefaultMaxChats is the capacity used when none is configured.
const DefaultMaxChats = 50

// ErrNotFound is returned for an index outside the history list.
var ErrNotFound = errors.New("history: entry not found")

var tracer = otel.Tracer("github.com/flemzord/chatgate/internal/history")

// Observer receives flush outcomes and size changes. Used for metrics.
type Observer interface {
	Flushed(ok bool)
	Size(n int)
}

type nopObserver struct{}

func (nopObserver) Flushed(bool) {}
func (nopObserver) Size(int)     {}

// StoreConfig configures a Store.
type StoreConfig struct {
	// MaxChats bounds the list. Zero means DefaultMaxChats.
	MaxChats  int
	Persister Persister
	Logger    *slog.Logger
	Observer  Observer
}

// Store is the ordered, bounded, upsert-by-id collection of conversations.
// Entries are ordered most recently saved first and hold at most one
// entry per conversation id. Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	entries   []*conversation.Conversation
	max       int
	persister Persister
	logger    *slog.Logger
	observer  Observer

	// stale is set when the last flush failed or was skipped.
	stale bool
}

// NewStore creates an empty Store. Call Load to populate it from the persister.
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxChats <= 0 {
		cfg.MaxChats = DefaultMaxChats
	}
	if cfg.Persister == nil {
		cfg.Persister = NopPersister{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Store{
		max:       cfg.MaxChats,
		persister: cfg.Persister,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
	}
}

// Upsert saves a snapshot of c at the front of the list, replacing any entry
// with the same id, then flushes. Conversations without turns are ignored.
func (s *Store) Upsert(ctx context.Context, c *conversation.Conversation) {
	if c == nil || !c.HasTurns() {
		return
	}
	entry := c.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*conversation.Conversation, 0, len(s.entries)+1)
	kept = append(kept, entry)
	for _, e := range s.entries {
		if e.ID != entry.ID {
			kept = append(kept, e)
		}
	}
	if len(kept) > s.max {
		kept = kept[:s.max]
	}
	s.entries = kept
	s.flushLocked(ctx)
}

// Get returns a copy of the entry at index.
func (s *Store) Get(index int) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return s.entries[index].Clone(), nil
}

// Remove deletes the entry at index and flushes. Later entries shift down.
func (s *Store) Remove(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	s.entries = append(s.entries[:index:index], s.entries[index+1:]...)
	s.flushLocked(ctx)
	return nil
}

// All returns copies of every entry, most recent first.
func (s *Store) All() []*conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conversation.Conversation, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Load replaces the in-memory entries with the persisted ones. The same
// dedup, empty-exclusion and capacity rules as Upsert apply. It returns
// the number of entries kept.
func (s *Store) Load(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "history.load")
	defer span.End()

	loaded := s.persister.Load(ctx)
	entries := normalize(loaded, s.max)

	s.mu.Lock()
	s.entries = entries
	s.stale = false
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("history.entries", len(entries)))
	s.observer.Size(len(entries))
	if dropped := len(loaded) - len(entries); dropped > 0 {
		s.logger.Debug("history: dropped invalid or excess entries on load", "dropped", dropped)
	}
	return len(entries)
}

// Resync re-flushes the list when the previous flush failed or was skipped.
// It reports whether a flush was attempted and succeeded.
func (s *Store) Resync(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stale {
		return false
	}
	if !s.persister.Available(ctx) {
		return false
	}
	return s.flushLocked(ctx)
}

// Stale reports whether the persisted copy may lag behind memory.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// flushLocked writes the current entries. Failures never propagate: the
// in-memory list remains the source of truth.
func (s *Store) flushLocked(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "history.save")
	defer span.End()

	ok := s.persister.Save(ctx, s.entries)
	s.stale = !ok
	span.SetAttributes(
		attribute.Int("history.entries", len(s.entries)),
		attribute.Bool("history.persisted", ok),
	)
	s.observer.Flushed(ok)
	s.observer.Size(len(s.entries))
	if !ok {
		s.logger.Debug("history: snapshot not persisted", "entries", len(s.entries))
	}
	return ok
}

// normalize applies the store invariants to externally sourced entries.
func normalize(in []*conversation.Conversation, limit int) []*conversation.Conversation {
	seen := make(map[string]struct{}, len(in))
	out := make([]*conversation.Conversation, 0, min(len(in), limit))
	for _, c := range in {
		if c == nil || !c.HasTurns() {
			continue
		}
		if c.ID == "" {
			c.ID = conversation.NewID()
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if c.Preview == "" {
			c.Preview = conversation.Preview(c.Messages)
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}
