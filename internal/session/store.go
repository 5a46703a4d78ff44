package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStoreFull is returned by Create when MaxSessions is reached.
var ErrStoreFull = errors.New("session: too many active sessions")

// Entry is a logged-in browser session and its chat state.
type Entry struct {
	Token        string
	Session      *Session
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Store maps opaque browser tokens to sessions. It is concurrency-safe.
// The `now` function is injectable for deterministic testing.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	factory func() *Session

	maxSessions int // 0: no cap

	now func() time.Time
}

// NewStore creates an empty Store. factory builds the Session of each new entry.
func NewStore(factory func() *Session) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		factory: factory,
		now:     time.Now,
	}
}

// SetMaxSessions caps how many browsers may be logged in at once; 0 lifts
// the cap. Existing sessions are never evicted by a lower cap.
func (s *Store) SetMaxSessions(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSessions = limit
}

// Create registers a new session under a fresh random token.
func (s *Store) Create() (*Entry, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.entries) >= s.maxSessions {
		return nil, ErrStoreFull
	}
	now := s.now()
	e := &Entry{
		Token:        token,
		Session:      s.factory(),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.entries[token] = e
	return e, nil
}

// Get returns the session for token and marks it active.
func (s *Store) Get(token string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return nil, false
	}
	e.LastActiveAt = s.now()
	return e.Session, true
}

// Delete removes the session for token. It is a no-op for unknown tokens.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
}

// Prune removes sessions idle longer than maxIdle and returns how many
// were removed.
func (s *Store) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for token, e := range s.entries {
		if now.Sub(e.LastActiveAt) > maxIdle {
			delete(s.entries, token)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// generateToken produces a 32-character hex string from 16 random bytes.
func generateToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("session: crypto/rand unavailable: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
