package store

import (
	"sync"

	"taptile/internal/models"
)

// gridState holds one game's tiles and scores behind a single lock so a
// claim's check-and-set and score increment are indivisible.
type gridState struct {
	mu     sync.Mutex
	tiles  map[int]models.Tile
	scores map[string]int
}

// Grids owns per-game tile and score state. The claim primitive is the
// arbiter for concurrent claim races: under N simultaneous attempts on
// one tile exactly one wins, and only the winner's score moves.
type Grids struct {
	mu    sync.Mutex
	games map[string]*gridState
}

// NewGrids creates an empty grid store
func NewGrids() *Grids {
	return &Grids{games: make(map[string]*gridState)}
}

// state allocates on first use. Only Claim may call it: read paths for
// unknown game ids must not leave state behind.
func (s *Grids) state(gameID string) *gridState {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		g = &gridState{
			tiles:  make(map[int]models.Tile),
			scores: make(map[string]int),
		}
		s.games[gameID] = g
	}
	return g
}

func (s *Grids) lookup(gameID string) (*gridState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	return g, ok
}

// Claim records the tile for its claimant and increments the claimant's
// score by one, as a single indivisible step. If the tile already has an
// owner nothing changes and Claim reports false.
func (s *Grids) Claim(gameID string, tile models.Tile) bool {
	g := s.state(gameID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.tiles[tile.TileID]; taken {
		return false
	}
	g.tiles[tile.TileID] = tile
	g.scores[tile.UserID]++
	return true
}

// Tile returns the claimed tile, or false if it has no owner yet
func (s *Grids) Tile(gameID string, tileID int) (models.Tile, bool) {
	g, ok := s.lookup(gameID)
	if !ok {
		return models.Tile{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	tile, ok := g.tiles[tileID]
	return tile, ok
}

// Tiles returns tiles positionally aligned with tileIDs, nil for
// unclaimed entries
func (s *Grids) Tiles(gameID string, tileIDs []int) []*models.Tile {
	out := make([]*models.Tile, len(tileIDs))
	g, ok := s.lookup(gameID)
	if !ok {
		return out
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, id := range tileIDs {
		if tile, ok := g.tiles[id]; ok {
			t := tile
			out[i] = &t
		}
	}
	return out
}

// AllTiles returns a copy of every claimed tile in the game
func (s *Grids) AllTiles(gameID string) map[int]models.Tile {
	g, ok := s.lookup(gameID)
	if !ok {
		return map[int]models.Tile{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[int]models.Tile, len(g.tiles))
	for id, tile := range g.tiles {
		out[id] = tile
	}
	return out
}

// Scores returns a copy of the per-user score counters for the game
func (s *Grids) Scores(gameID string) map[string]int {
	g, ok := s.lookup(gameID)
	if !ok {
		return map[string]int{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.scores))
	for id, score := range g.scores {
		out[id] = score
	}
	return out
}

// Score returns one user's score in the game, zero if they have none
func (s *Grids) Score(gameID, userID string) int {
	g, ok := s.lookup(gameID)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scores[userID]
}

// Drop releases all grid state for a game
func (s *Grids) Drop(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
}
