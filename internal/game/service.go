package game

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"taptile/internal/models"
	"taptile/internal/store"

	"github.com/google/uuid"
)

var (
	ErrGameNotFound = store.ErrGameNotFound
	ErrGameStarted  = errors.New("game already started")
	ErrGameFull     = errors.New("game is full")
)

// errNotActive is internal to End's idempotency check
var errNotActive = errors.New("game not active")

// Broadcaster multicasts events to a game's room or to every connection
type Broadcaster interface {
	ToRoom(gameID, event string, payload any) error
	ToAll(event string, payload any) error
}

// SessionLookup resolves participant identities for leaderboard
// enrichment
type SessionLookup interface {
	Lookup(userID string) (models.Session, bool)
}

// PendingUpdates is the slice of the aggregator the lifecycle manager
// needs: releasing a finished game's queue.
type PendingUpdates interface {
	DropGame(gameID string)
}

// Archiver receives finished games for durable storage. The default
// implementation discards them; a real archive is a future hook.
type Archiver interface {
	Archive(game models.Game, leaderboard []models.LeaderboardEntry)
}

// NopArchiver discards finished games
type NopArchiver struct{}

func (NopArchiver) Archive(models.Game, []models.LeaderboardEntry) {}

// Options carries the lifecycle manager's tunables
type Options struct {
	DefaultGridWidth  int
	DefaultGridHeight int
	DefaultMaxPlayers int
	Duration          time.Duration
	// WaitingTTL bounds how long an unstarted lobby survives
	WaitingTTL time.Duration
	// EndGrace extends a started game's record past its duration
	EndGrace time.Duration
	// LeaderboardLimit caps the entries of the game-ended broadcast
	LeaderboardLimit int
}

// Service is the game lifecycle manager: a per-game state machine
// waiting → active → ended, with deleted reachable only from waiting. It
// is the single writer of game status and start/end times.
type Service struct {
	games    *store.Games
	grids    *store.Grids
	sessions SessionLookup
	rooms    Broadcaster
	pending  PendingUpdates
	archiver Archiver
	opts     Options
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewService creates a lifecycle manager
func NewService(games *store.Games, grids *store.Grids, sessions SessionLookup, rooms Broadcaster, pending PendingUpdates, opts Options) *Service {
	return &Service{
		games:    games,
		grids:    grids,
		sessions: sessions,
		rooms:    rooms,
		pending:  pending,
		archiver: NopArchiver{},
		opts:     opts,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// SetArchiver installs a destination for finished games
func (s *Service) SetArchiver(a Archiver) {
	s.archiver = a
}

// Create registers a new waiting game in the discoverable index. Zero
// request fields fall back to the configured defaults. Unstarted lobbies
// self-expire after the waiting TTL.
func (s *Service) Create(creatorID string, req models.CreateGameRequest) models.Game {
	width, height := req.GridWidth, req.GridHeight
	if width <= 0 {
		width = s.opts.DefaultGridWidth
	}
	if height <= 0 {
		height = s.opts.DefaultGridHeight
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = s.opts.DefaultMaxPlayers
	}

	g := models.NewGame(uuid.New().String(), creatorID, width, height, maxPlayers, s.opts.Duration)
	s.games.Put(g, s.opts.WaitingTTL)
	s.games.AddWaiting(g.GameID)
	log.Printf("game: created %s (%dx%d)", g.GameID, width, height)

	created, _ := s.games.Get(g.GameID)
	return created
}

// Get returns game metadata, or false if the game is absent or expired
func (s *Service) Get(gameID string) (models.Game, bool) {
	return s.games.Get(gameID)
}

// IsActive reports whether the game currently accepts claims
func (s *Service) IsActive(gameID string) bool {
	g, ok := s.games.Get(gameID)
	return ok && g.Status == models.StatusActive
}

// RemainingTime returns how long an active game has left, zero otherwise
func (s *Service) RemainingTime(gameID string) time.Duration {
	g, ok := s.games.Get(gameID)
	if !ok || g.Status != models.StatusActive {
		return 0
	}
	remaining := g.EndTime.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AddPlayer seats a player in a waiting game. Re-adding a seated player
// is a no-op. Rejects with ErrGameFull once capacity is reached.
func (s *Service) AddPlayer(gameID string, player models.Player) (models.Game, error) {
	return s.games.Update(gameID, s.opts.WaitingTTL, func(g *models.Game) error {
		if g.Status != models.StatusWaiting {
			return ErrGameStarted
		}
		if _, seated := g.Players[player.UserID]; seated {
			return nil
		}
		if g.MaxPlayers > 0 && len(g.Players) >= g.MaxPlayers {
			return ErrGameFull
		}
		g.Players[player.UserID] = player
		return nil
	})
}

// RemovePlayer frees a seat in a waiting game
func (s *Service) RemovePlayer(gameID, userID string) (models.Game, error) {
	return s.games.Update(gameID, 0, func(g *models.Game) error {
		if g.Status != models.StatusWaiting {
			return ErrGameStarted
		}
		delete(g.Players, userID)
		return nil
	})
}

// Start transitions a waiting game to active, removes it from the
// waiting index, extends its record to cover the whole duration plus a
// grace margin, and arms the one-shot deadline timer that ends it.
func (s *Service) Start(gameID string) (models.Game, error) {
	g, err := s.games.Update(gameID, s.opts.Duration+s.opts.EndGrace, func(g *models.Game) error {
		if g.Status != models.StatusWaiting {
			return ErrGameStarted
		}
		now := s.now()
		g.Status = models.StatusActive
		g.StartTime = now
		g.EndTime = now.Add(g.Duration.Duration())
		return nil
	})
	if err != nil {
		return models.Game{}, err
	}

	s.games.RemoveWaiting(gameID)

	s.mu.Lock()
	s.timers[gameID] = time.AfterFunc(g.Duration.Duration(), func() {
		s.End(gameID)
	})
	s.mu.Unlock()

	log.Printf("game: started %s (ends %s)", gameID, g.EndTime.Format(time.RFC3339))
	return g, nil
}

// End finalizes an active game: computes the leaderboard, broadcasts
// gameEnded to the room and releases per-game scheduling state. Both the
// deadline timer and an explicit end may race to call it; every call
// after the first is a no-op.
func (s *Service) End(gameID string) {
	g, err := s.games.Update(gameID, 0, func(g *models.Game) error {
		if g.Status != models.StatusActive {
			return errNotActive
		}
		g.Status = models.StatusEnded
		g.EndTime = s.now()
		return nil
	})
	if err != nil {
		return
	}

	s.stopTimer(gameID)
	s.pending.DropGame(gameID)

	leaderboard := s.Leaderboard(gameID, s.opts.LeaderboardLimit)
	s.rooms.ToRoom(gameID, models.EventGameEnded, models.GameEnded{
		GameID:      gameID,
		EndTime:     g.EndTime,
		Leaderboard: leaderboard,
	})
	s.archiver.Archive(g, leaderboard)
	log.Printf("game: ended %s", gameID)
}

// Delete cancels a game that has not started, removing all of its state.
// Callers broadcast the cancellation notice.
func (s *Service) Delete(gameID string) error {
	g, ok := s.games.Get(gameID)
	if !ok {
		return ErrGameNotFound
	}
	if g.Status != models.StatusWaiting {
		return ErrGameStarted
	}
	s.games.Delete(gameID)
	s.grids.Drop(gameID)
	s.pending.DropGame(gameID)
	s.stopTimer(gameID)
	log.Printf("game: deleted %s", gameID)
	return nil
}

// ListWaiting enumerates joinable games. Index entries whose metadata has
// expired are pruned as a side effect of listing.
func (s *Service) ListWaiting() []models.Game {
	ids := s.games.WaitingIDs()
	games := make([]models.Game, 0, len(ids))
	for _, id := range ids {
		g, ok := s.games.Get(id)
		if !ok {
			s.games.RemoveWaiting(id)
			continue
		}
		if g.Status == models.StatusWaiting {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].CreatedAt.Before(games[j].CreatedAt)
	})
	return games
}

// Leaderboard returns up to limit entries sorted by score descending,
// ties broken by user id so the order is deterministic, with dense
// 1-based ranks. Entries whose session has expired keep their user id
// without name or color.
func (s *Service) Leaderboard(gameID string, limit int) []models.LeaderboardEntry {
	if limit <= 0 {
		limit = s.opts.LeaderboardLimit
	}
	scores := s.grids.Scores(gameID)
	entries := make([]models.LeaderboardEntry, 0, len(scores))
	for userID, score := range scores {
		entries = append(entries, models.LeaderboardEntry{UserID: userID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
		if session, ok := s.sessions.Lookup(entries[i].UserID); ok {
			entries[i].Username = session.Username
			entries[i].Color = session.Color
		}
	}
	return entries
}

// Sweep evicts expired game records along with their grid state and
// pending notifications, returning the evicted ids
func (s *Service) Sweep() []string {
	removed := s.games.Sweep()
	for _, id := range removed {
		s.grids.Drop(id)
		s.pending.DropGame(id)
		s.stopTimer(id)
	}
	return removed
}

// Close stops every armed deadline timer
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) stopTimer(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[gameID]; ok {
		timer.Stop()
		delete(s.timers, gameID)
	}
}
