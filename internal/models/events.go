package models

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the websocket connection
const (
	// inbound
	EventCreateGame     = "createGame"
	EventJoinGame       = "joinGame"
	EventLeaveGame      = "leaveGame"
	EventStartGame      = "startGame"
	EventAvailableGames = "getAvailableGames"
	EventClaimTile      = "claimTile"
	EventGetTiles       = "getTiles"
	EventGetLeaderboard = "getLeaderboard"

	// outbound
	EventGameCreated       = "gameCreated"
	EventGameJoined        = "gameJoined"
	EventPlayerJoined      = "playerJoined"
	EventPlayerLeft        = "playerLeft"
	EventGameCancelled     = "gameCancelled"
	EventGameStarted       = "gameStarted"
	EventGameEnded         = "gameEnded"
	EventGamesList         = "availableGames"
	EventTileClaimed       = "tileClaimed"
	EventTilesData         = "tilesData"
	EventBatchUpdate       = "batchUpdate"
	EventScoreUpdate       = "scoreUpdate"
	EventLeaderboardUpdate = "leaderboardUpdate"
	EventUserJoined        = "userJoined"
	EventUserLeft          = "userLeft"
	EventUserCount         = "userCount"
	EventError             = "error"
)

// Event is the wire envelope for every websocket message
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CreateGameRequest is the payload of a createGame event. Zero fields fall
// back to the server's configured defaults.
type CreateGameRequest struct {
	GridWidth  int `json:"gridWidth,omitempty"`
	GridHeight int `json:"gridHeight,omitempty"`
	MaxPlayers int `json:"maxPlayers,omitempty"`
}

// GameRequest addresses an existing game (joinGame, leaveGame, startGame,
// getLeaderboard)
type GameRequest struct {
	GameID string `json:"gameId"`
}

// ClaimTileRequest is the payload of a claimTile event
type ClaimTileRequest struct {
	GameID string `json:"gameId"`
	TileID int    `json:"tileId"`
}

// GetTilesRequest is the payload of a getTiles event. Empty TileIDs means
// the full grid.
type GetTilesRequest struct {
	GameID  string `json:"gameId"`
	TileIDs []int  `json:"tileIds,omitempty"`
}

// BatchFrame is the coalesced room-scoped update broadcast
type BatchFrame struct {
	Updates   []TileUpdate `json:"updates"`
	Timestamp time.Time    `json:"timestamp"`
}

// GameEnded is the terminal room broadcast carrying final standings
type GameEnded struct {
	GameID      string             `json:"gameId"`
	EndTime     time.Time          `json:"endTime"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// ErrorPayload is sent to the originating caller only
type ErrorPayload struct {
	Message string `json:"message"`
}
