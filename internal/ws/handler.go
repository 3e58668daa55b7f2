package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"taptile/internal/batch"
	"taptile/internal/broadcast"
	"taptile/internal/game"
	"taptile/internal/grid"
	"taptile/internal/models"
	"taptile/internal/presence"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler terminates websocket connections and dispatches the event
// protocol onto the domain services.
type Handler struct {
	presence *presence.Service
	games    *game.Service
	grid     *grid.Service
	batches  *batch.Aggregator
	hub      *broadcast.Hub
}

// NewHandler creates a websocket handler
func NewHandler(p *presence.Service, g *game.Service, gr *grid.Service, b *batch.Aggregator, hub *broadcast.Hub) *Handler {
	return &Handler{
		presence: p,
		games:    g,
		grid:     gr,
		batches:  b,
		hub:      hub,
	}
}

// RegisterRoutes sets up the websocket route
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWebSocket)
}

// conn tracks the per-connection state the read loop needs: the bound
// identity and the game room currently joined.
type conn struct {
	client  *broadcast.Client
	session models.Session
	gameID  string
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Identity is validated before the upgrade; a rejected name never
	// reaches the event protocol.
	username := r.URL.Query().Get("username")
	if _, err := presence.ValidateUsername(username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer wsConn.Close()

	session, err := h.presence.Authenticate(username, r.RemoteAddr)
	if err != nil {
		wsConn.WriteJSON(models.Event{Event: models.EventError})
		return
	}

	client := broadcast.NewClient(session.UserID, wsConn)
	h.hub.Register(client)
	go client.WritePump()

	c := &conn{client: client, session: session}

	client.Send(models.EventUserJoined, userPayload{
		UserID:   session.UserID,
		Username: session.Username,
		Color:    session.Color,
		Message:  "Welcome, " + session.Username + "!",
	})
	h.hub.ToAllExcept(client, models.EventUserJoined, userPayload{
		UserID:   session.UserID,
		Username: session.Username,
		Color:    session.Color,
	})
	h.hub.ToAll(models.EventUserCount, h.hub.Count())

	for {
		var event models.Event
		if err := wsConn.ReadJSON(&event); err != nil {
			break
		}
		h.dispatch(c, event)
	}

	h.disconnect(c)
}

func (h *Handler) dispatch(c *conn, event models.Event) {
	switch event.Event {
	case models.EventCreateGame:
		h.handleCreateGame(c, event.Data)
	case models.EventJoinGame:
		h.handleJoinGame(c, event.Data)
	case models.EventLeaveGame:
		h.handleLeaveGame(c, event.Data)
	case models.EventStartGame:
		h.handleStartGame(c, event.Data)
	case models.EventAvailableGames:
		h.handleAvailableGames(c)
	case models.EventClaimTile:
		h.handleClaimTile(c, event.Data)
	case models.EventGetTiles:
		h.handleGetTiles(c, event.Data)
	case models.EventGetLeaderboard:
		h.handleGetLeaderboard(c, event.Data)
	default:
		h.sendError(c, "Unknown event")
	}
}

type userPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
	Message  string `json:"message,omitempty"`
}

type gamePayload struct {
	Game    models.Game     `json:"game"`
	Players []models.Player `json:"players"`
}

func (h *Handler) handleCreateGame(c *conn, data json.RawMessage) {
	var req models.CreateGameRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendError(c, "Invalid createGame payload")
			return
		}
	}

	g := h.games.Create(c.session.UserID, req)
	payload := gamePayload{Game: g, Players: g.PlayerList()}
	c.client.Send(models.EventGameCreated, payload)
	h.hub.ToAllExcept(c.client, models.EventGameCreated, payload)
	log.Printf("ws: %s created game %s", c.session.Username, g.GameID)
}

func (h *Handler) handleJoinGame(c *conn, data json.RawMessage) {
	var req models.GameRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		h.sendError(c, "Invalid joinGame payload")
		return
	}

	g, ok := h.games.Get(req.GameID)
	if !ok {
		h.sendError(c, "Game not found")
		return
	}

	// A seat is only granted while the game is waiting; joining later
	// attaches the connection to the room without one.
	if g.Status == models.StatusWaiting {
		updated, err := h.games.AddPlayer(req.GameID, c.session.Player())
		if err != nil {
			if errors.Is(err, game.ErrGameFull) {
				h.sendError(c, "Game is full")
				return
			}
			if !errors.Is(err, game.ErrGameStarted) {
				h.sendError(c, "Failed to join game")
				return
			}
		} else {
			g = updated
		}
	}

	h.hub.Join(req.GameID, c.client)
	c.gameID = req.GameID

	c.client.Send(models.EventGameJoined, struct {
		GameID       string      `json:"gameId"`
		GameInfo     models.Game `json:"gameInfo"`
		YourUserID   string      `json:"yourUserId"`
		YourUsername string      `json:"yourUsername"`
		YourColor    string      `json:"yourColor"`
	}{req.GameID, g, c.session.UserID, c.session.Username, c.session.Color})

	h.hub.ToOthers(req.GameID, c.client, models.EventPlayerJoined, struct {
		GameID string        `json:"gameId"`
		Player models.Player `json:"player"`
	}{req.GameID, c.session.Player()})

	log.Printf("ws: %s joined game %s", c.session.Username, req.GameID)
}

func (h *Handler) handleLeaveGame(c *conn, data json.RawMessage) {
	var req models.GameRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		h.sendError(c, "Invalid leaveGame payload")
		return
	}

	g, ok := h.games.Get(req.GameID)
	if !ok {
		h.sendError(c, "Game not found")
		return
	}

	h.hub.Leave(req.GameID, c.client)
	if c.gameID == req.GameID {
		c.gameID = ""
	}

	// The creator abandoning an unstarted lobby cancels it outright.
	if g.Status == models.StatusWaiting && g.CreatorID == c.session.UserID {
		if err := h.games.Delete(req.GameID); err == nil {
			h.hub.ToAll(models.EventGameCancelled, models.GameRequest{GameID: req.GameID})
			log.Printf("ws: %s cancelled game %s", c.session.Username, req.GameID)
			return
		}
	}

	if _, err := h.games.RemovePlayer(req.GameID, c.session.UserID); err != nil && !errors.Is(err, game.ErrGameStarted) {
		return
	}
	h.hub.ToAll(models.EventPlayerLeft, struct {
		GameID string `json:"gameId"`
		UserID string `json:"userId"`
	}{req.GameID, c.session.UserID})
}

func (h *Handler) handleStartGame(c *conn, data json.RawMessage) {
	var req models.GameRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		h.sendError(c, "Invalid startGame payload")
		return
	}

	g, err := h.games.Start(req.GameID)
	if err != nil {
		switch {
		case errors.Is(err, game.ErrGameNotFound):
			h.sendError(c, "Game not found")
		case errors.Is(err, game.ErrGameStarted):
			h.sendError(c, "Game already started")
		default:
			h.sendError(c, "Failed to start game")
		}
		return
	}

	h.hub.ToRoom(req.GameID, models.EventGameStarted, struct {
		GameID    string        `json:"gameId"`
		StartTime int64         `json:"startTime"`
		EndTime   int64         `json:"endTime"`
		Duration  models.Millis `json:"duration"`
	}{g.GameID, g.StartTime.UnixMilli(), g.EndTime.UnixMilli(), g.Duration})

	// Lobby refresh for connections outside the room.
	h.hub.ToAll(models.EventGameStarted, models.GameRequest{GameID: g.GameID})
}

func (h *Handler) handleAvailableGames(c *conn) {
	games := h.games.ListWaiting()
	c.client.Send(models.EventGamesList, struct {
		Games []models.Game `json:"games"`
	}{games})
}

type tileClaimedPayload struct {
	Success bool         `json:"success"`
	Tile    *models.Tile `json:"tile,omitempty"`
	TileID  int          `json:"tileId,omitempty"`
	Message string       `json:"message,omitempty"`
}

func (h *Handler) handleClaimTile(c *conn, data json.RawMessage) {
	var req models.ClaimTileRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		h.sendError(c, "Invalid claimTile payload")
		return
	}

	g, ok := h.games.Get(req.GameID)
	if !ok {
		h.sendError(c, "Game not found")
		return
	}
	if req.TileID < 0 || req.TileID >= g.TotalTiles {
		h.sendError(c, "Invalid tile ID")
		return
	}
	if c.gameID != req.GameID {
		h.sendError(c, "You are not in this game")
		return
	}

	tile, result := h.grid.Claim(req.GameID, req.TileID, c.session.Player())
	switch result {
	case grid.ResultClaimed:
		c.client.Send(models.EventTileClaimed, tileClaimedPayload{Success: true, Tile: &tile})
		h.batches.Record(req.GameID, models.TileUpdate{
			TileID:    tile.TileID,
			Color:     tile.Color,
			UserID:    tile.UserID,
			Username:  tile.Username,
			Timestamp: tile.ClaimedAt,
		})
		c.client.Send(models.EventScoreUpdate, struct {
			Score int `json:"score"`
		}{h.grid.Score(req.GameID, c.session.UserID)})
	case grid.ResultAlreadyClaimed:
		c.client.Send(models.EventTileClaimed, tileClaimedPayload{
			Success: false,
			TileID:  req.TileID,
			Message: "Tile already claimed",
		})
	case grid.ResultNotActive:
		c.client.Send(models.EventTileClaimed, tileClaimedPayload{
			Success: false,
			TileID:  req.TileID,
			Message: "Game is not active",
		})
	}
}

func (h *Handler) handleGetTiles(c *conn, data json.RawMessage) {
	var req models.GetTilesRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		h.sendError(c, "Invalid getTiles payload")
		return
	}

	var tiles any
	if len(req.TileIDs) > 0 {
		tiles = h.grid.Tiles(req.GameID, req.TileIDs)
	} else {
		tiles = h.grid.AllTiles(req.GameID)
	}
	c.client.Send(models.EventTilesData, struct {
		GameID string `json:"gameId"`
		Tiles  any    `json:"tiles"`
	}{req.GameID, tiles})
}

func (h *Handler) handleGetLeaderboard(c *conn, data json.RawMessage) {
	var req models.GameRequest
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		h.sendError(c, "Invalid getLeaderboard payload")
		return
	}

	leaderboard := h.games.Leaderboard(req.GameID, 0)
	c.client.Send(models.EventLeaderboardUpdate, struct {
		GameID      string                    `json:"gameId"`
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}{req.GameID, leaderboard})
}

// disconnect tears down presence for a closed connection. Game seats are
// left in place; only the identity record is cleaned up.
func (h *Handler) disconnect(c *conn) {
	h.hub.Unregister(c.client)
	h.presence.Release(c.session.UserID)
	h.hub.ToAll(models.EventUserLeft, userPayload{
		UserID:   c.session.UserID,
		Username: c.session.Username,
	})
	h.hub.ToAll(models.EventUserCount, h.hub.Count())
	log.Printf("ws: %s disconnected", c.session.Username)
}

func (h *Handler) sendError(c *conn, message string) {
	c.client.Send(models.EventError, models.ErrorPayload{Message: message})
}
