package grid

import (
	"log"
	"time"

	"taptile/internal/models"
	"taptile/internal/store"
)

// ClaimResult is the outcome of a claim attempt
type ClaimResult int

const (
	ResultClaimed ClaimResult = iota
	ResultAlreadyClaimed
	ResultNotActive
)

// ActiveChecker reports whether a game currently accepts claims. The
// lifecycle manager implements it.
type ActiveChecker interface {
	IsActive(gameID string) bool
}

// Service is the grid and claim engine: it owns per-game tile state and
// scores, and resolves concurrent claim races through the store's atomic
// claim primitive rather than engine-level locking.
type Service struct {
	grids  *store.Grids
	active ActiveChecker
	now    func() time.Time
}

// NewService creates a claim engine over the given grid store
func NewService(grids *store.Grids, active ActiveChecker) *Service {
	return &Service{
		grids:  grids,
		active: active,
		now:    time.Now,
	}
}

// Claim attempts to take a tile for the claimant. Claims against a game
// that is not active are rejected without side effects. Exactly one of
// any set of concurrent claimants for the same tile observes
// ResultClaimed; that claimant's score increases by one.
func (s *Service) Claim(gameID string, tileID int, claimant models.Player) (models.Tile, ClaimResult) {
	if !s.active.IsActive(gameID) {
		return models.Tile{}, ResultNotActive
	}

	tile := models.Tile{
		TileID:    tileID,
		UserID:    claimant.UserID,
		Username:  claimant.Username,
		Color:     claimant.Color,
		ClaimedAt: s.now(),
	}
	if !s.grids.Claim(gameID, tile) {
		return models.Tile{}, ResultAlreadyClaimed
	}
	log.Printf("grid: %s claimed tile %d in game %s", claimant.Username, tileID, gameID)
	return tile, ResultClaimed
}

// Tile returns the tile's claim record, or false while it is unclaimed
func (s *Service) Tile(gameID string, tileID int) (models.Tile, bool) {
	return s.grids.Tile(gameID, tileID)
}

// Tiles returns claim records positionally aligned with tileIDs; entries
// for unclaimed tiles are nil
func (s *Service) Tiles(gameID string, tileIDs []int) []*models.Tile {
	return s.grids.Tiles(gameID, tileIDs)
}

// AllTiles returns every claimed tile in the game, for full-state resync
func (s *Service) AllTiles(gameID string) map[int]models.Tile {
	return s.grids.AllTiles(gameID)
}

// Scores returns the per-user score counters for the game
func (s *Service) Scores(gameID string) map[string]int {
	return s.grids.Scores(gameID)
}

// Score returns one user's score in the game
func (s *Service) Score(gameID, userID string) int {
	return s.grids.Score(gameID, userID)
}
