package editpreview

import (
	"sync"
	"time"
)

// SessionStore keeps preview sessions between requests.
type SessionStore interface {
	Get(key string) *Session
	Set(key string, s *Session)
	Delete(key string)
}

// MemorySessionStore is a simple in-memory session store. Sessions idle
// for longer than the TTL are dropped by Sweep.
type MemorySessionStore struct {
	sessions map[string]*memoryEntry
	ttl      time.Duration
	mu       sync.RWMutex
}

type memoryEntry struct {
	session *Session
	seen    time.Time
}

// DefaultSessionTTL is the idle lifetime of a session.
const DefaultSessionTTL = 2 * time.Hour

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      DefaultSessionTTL,
	}
}

// Get retrieves a session
func (s *MemorySessionStore) Get(key string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		return nil
	}
	e.seen = time.Now()
	return e.session
}

// Set stores a session
func (s *MemorySessionStore) Set(key string, session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = &memoryEntry{session: session, seen: time.Now()}
}

// Delete removes a session
func (s *MemorySessionStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Len returns the number of sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle since before now minus the TTL and returns
// how many it removed.
func (s *MemorySessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.sessions {
		if now.Sub(e.seen) > s.ttl {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}
