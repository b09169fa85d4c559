// Package session holds the registry of open recognition streams.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/lexiqai/conversation-pipeline/internal/stt"
)

// ErrSessionNotFound is returned when no open session exists for an id
var ErrSessionNotFound = errors.New("session not found")

// Session is one open recognition stream keyed by a caller-supplied id
type Session struct {
	ID        string
	Stream    stt.Stream
	CreatedAt time.Time
}

// Store maps session ids to open sessions. Implementations must be safe for
// concurrent use. The in-memory implementation is the default; a shared
// key-value backend can replace it without changing callers.
type Store interface {
	// Put registers s, replacing any session already stored under s.ID
	Put(s *Session)
	// Get returns the current session for id
	Get(id string) (*Session, bool)
	// Remove deletes the session for id and reports whether one existed
	Remove(id string) bool
	// RemoveIf deletes the session for id only if it is still s
	RemoveIf(id string, s *Session) bool
	// CleanupOlderThan removes sessions created before now-d and returns
	// how many were removed
	CleanupOlderThan(d time.Duration) int
	// Len returns the number of stored sessions
	Len() int
}

// MemoryStore is a Store backed by a map guarded by a RWMutex
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// Option configures a MemoryStore
type Option func(*MemoryStore)

// WithClock overrides the time source used by CleanupOlderThan
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates an empty store
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Put implements Store
func (m *MemoryStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Get implements Store
func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove implements Store
func (m *MemoryStore) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// RemoveIf implements Store. It keeps a late terminal event from one stream
// from evicting a newer session that reused the same id.
func (m *MemoryStore) RemoveIf(id string, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[id]; !ok || cur != s {
		return false
	}
	delete(m.sessions, id)
	return true
}

// CleanupOlderThan implements Store
func (m *MemoryStore) CleanupOlderThan(d time.Duration) int {
	cutoff := m.now().Add(-d)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len implements Store
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
