// Package store holds the in-process keyed state that the server would
// otherwise delegate to an external store: bounded-lifetime session and
// game records, the waiting-games index, and per-game grid state with an
// atomic claim primitive.
package store

import (
	"sync"
	"time"

	"taptile/internal/models"
)

type sessionEntry struct {
	session   models.Session
	expiresAt time.Time
}

// Sessions is a mutex-guarded session map with per-entry expiry. Expired
// entries read as absent; Sweep evicts them.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
	now      func() time.Time
}

// NewSessions creates an empty session store
func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[string]sessionEntry),
		now:      time.Now,
	}
}

// Put stores a session with a bounded lifetime, replacing any existing
// record for the same user
func (s *Sessions) Put(session models.Session, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = sessionEntry{
		session:   session,
		expiresAt: s.now().Add(ttl),
	}
}

// Get returns the session for a user, or false if absent or expired
func (s *Sessions) Get(userID string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[userID]
	if !ok || s.now().After(entry.expiresAt) {
		return models.Session{}, false
	}
	return entry.session, true
}

// Delete removes a session; deleting an absent session is a no-op
func (s *Sessions) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Sweep evicts expired entries and reports how many were removed
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
