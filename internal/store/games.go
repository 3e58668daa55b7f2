package store

import (
	"errors"
	"sync"
	"time"

	"taptile/internal/models"
)

// ErrGameNotFound indicates a game record is absent or expired
var ErrGameNotFound = errors.New("game not found")

type gameEntry struct {
	game      *models.Game
	expiresAt time.Time
}

// Games is a mutex-guarded game-metadata map with per-entry expiry plus
// the waiting-games index. All read-modify-write cycles on a game record
// go through Update so they are atomic with respect to concurrent
// connection handlers.
type Games struct {
	mu      sync.RWMutex
	games   map[string]gameEntry
	waiting map[string]struct{}
	now     func() time.Time
}

// NewGames creates an empty game store
func NewGames() *Games {
	return &Games{
		games:   make(map[string]gameEntry),
		waiting: make(map[string]struct{}),
		now:     time.Now,
	}
}

// Put stores game metadata with a bounded lifetime
func (s *Games) Put(game *models.Game, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.GameID] = gameEntry{
		game:      game,
		expiresAt: s.now().Add(ttl),
	}
}

// Get returns a copy of the game metadata, or false if absent or expired
func (s *Games) Get(gameID string) (models.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.games[gameID]
	if !ok || s.now().After(entry.expiresAt) {
		return models.Game{}, false
	}
	return copyGame(entry.game), true
}

// Update applies fn to the stored game under the store lock. fn returning
// an error leaves the record untouched. A non-zero ttl extends the
// record's lifetime from now.
func (s *Games) Update(gameID string, ttl time.Duration, fn func(*models.Game) error) (models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.games[gameID]
	if !ok || s.now().After(entry.expiresAt) {
		return models.Game{}, ErrGameNotFound
	}
	if err := fn(entry.game); err != nil {
		return models.Game{}, err
	}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
		s.games[gameID] = entry
	}
	return copyGame(entry.game), nil
}

// Delete removes game metadata and its waiting-index entry
func (s *Games) Delete(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
	delete(s.waiting, gameID)
}

// AddWaiting registers a game in the discoverable waiting index
func (s *Games) AddWaiting(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting[gameID] = struct{}{}
}

// RemoveWaiting drops a game from the waiting index
func (s *Games) RemoveWaiting(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiting, gameID)
}

// WaitingIDs returns the ids currently in the waiting index. Entries may
// point at metadata that has since expired; callers prune those.
func (s *Games) WaitingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.waiting))
	for id := range s.waiting {
		ids = append(ids, id)
	}
	return ids
}

// Sweep evicts expired game records, reconciles the waiting index, and
// returns the ids that were removed
func (s *Games) Sweep() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed []string
	for id, entry := range s.games {
		if now.After(entry.expiresAt) {
			delete(s.games, id)
			delete(s.waiting, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// copyGame returns a deep-enough copy so callers cannot mutate stored
// state through the Players map
func copyGame(g *models.Game) models.Game {
	out := *g
	out.Players = make(map[string]models.Player, len(g.Players))
	for id, p := range g.Players {
		out.Players[id] = p
	}
	return out
}
