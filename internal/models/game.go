package models

import (
	"encoding/json"
	"time"
)

// Millis is a duration carried on the wire as integer milliseconds,
// the unit every duration field of the protocol uses.
type Millis time.Duration

func (m Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(m).Milliseconds())
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*m = Millis(time.Duration(ms) * time.Millisecond)
	return nil
}

// Duration converts back to the clock unit
func (m Millis) Duration() time.Duration { return time.Duration(m) }

// GameStatus represents the lifecycle state of a game
type GameStatus string

const (
	StatusWaiting GameStatus = "waiting"
	StatusActive  GameStatus = "active"
	StatusEnded   GameStatus = "ended"
)

// Player represents a seat in a game, distinct from the connection-bound
// session that joined it
type Player struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

// Game represents one bounded-duration session over one grid instance
type Game struct {
	GameID     string            `json:"gameId"`
	Status     GameStatus        `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartTime  time.Time         `json:"startTime,omitzero"`
	EndTime    time.Time         `json:"endTime,omitzero"`
	Duration   Millis            `json:"duration"`
	GridWidth  int               `json:"gridWidth"`
	GridHeight int               `json:"gridHeight"`
	TotalTiles int               `json:"totalTiles"`
	MaxPlayers int               `json:"maxPlayers,omitempty"`
	CreatorID  string            `json:"creatorId,omitempty"`
	Players    map[string]Player `json:"players"`
}

// NewGame creates a game in the waiting state
func NewGame(id, creatorID string, width, height, maxPlayers int, duration time.Duration) *Game {
	return &Game{
		GameID:     id,
		Status:     StatusWaiting,
		CreatedAt:  time.Now(),
		Duration:   Millis(duration),
		GridWidth:  width,
		GridHeight: height,
		TotalTiles: width * height,
		MaxPlayers: maxPlayers,
		CreatorID:  creatorID,
		Players:    make(map[string]Player),
	}
}

// PlayerList returns the players as a slice for wire payloads
func (g *Game) PlayerList() []Player {
	players := make([]Player, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, p)
	}
	return players
}

// Tile represents one claimed cell of the grid. Unclaimed tiles have no
// record at all.
type Tile struct {
	TileID    int       `json:"tileId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Color     string    `json:"color"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// TileUpdate is a pending claim notification awaiting the next batch flush
type TileUpdate struct {
	TileID    int       `json:"tileId"`
	Color     string    `json:"color"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// LeaderboardEntry is one ranked row of a game's final or live standings
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}
