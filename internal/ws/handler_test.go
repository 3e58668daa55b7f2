package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"taptile/internal/batch"
	"taptile/internal/broadcast"
	"taptile/internal/game"
	"taptile/internal/grid"
	"taptile/internal/models"
	"taptile/internal/presence"
	"taptile/internal/store"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	sessions := store.NewSessions()
	games := store.NewGames()
	grids := store.NewGrids()
	hub := broadcast.NewHub()
	aggregator := batch.New(time.Hour, hub) // never ticks during tests

	presenceService := presence.NewService(sessions, time.Hour)
	gameService := game.NewService(games, grids, presenceService, hub, aggregator, game.Options{
		DefaultGridWidth:  2,
		DefaultGridHeight: 2,
		Duration:          time.Hour,
		WaitingTTL:        time.Minute,
		EndGrace:          time.Minute,
		LeaderboardLimit:  10,
	})
	t.Cleanup(gameService.Close)
	gridService := grid.NewService(grids, gameService)
	handler := NewHandler(presenceService, gameService, gridService, aggregator, hub)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?username=" + url.QueryEscape(username)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitEvent reads events until one with the wanted name arrives
func awaitEvent(t *testing.T, conn *websocket.Conn, want string) models.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if event.Event == want {
			return event
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteJSON(models.Event{Event: event, Data: data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func TestHandshakeRejectsInvalidUsername(t *testing.T) {
	server := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?username=!"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestHandshakeWelcomesValidUser(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "alice")

	event := awaitEvent(t, conn, models.EventUserJoined)
	var payload struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
		Color    string `json:"color"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.UserID == "" || payload.Username != "alice" || payload.Color == "" {
		t.Fatalf("unexpected welcome payload %+v", payload)
	}
}

func TestGameFlowOverWebsocket(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "alice")
	awaitEvent(t, conn, models.EventUserJoined)

	// create
	send(t, conn, models.EventCreateGame, models.CreateGameRequest{})
	created := awaitEvent(t, conn, models.EventGameCreated)
	var createdPayload struct {
		Game models.Game `json:"game"`
	}
	if err := json.Unmarshal(created.Data, &createdPayload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	gameID := createdPayload.Game.GameID
	if gameID == "" || createdPayload.Game.TotalTiles != 4 {
		t.Fatalf("unexpected created game %+v", createdPayload.Game)
	}

	// join
	send(t, conn, models.EventJoinGame, models.GameRequest{GameID: gameID})
	joined := awaitEvent(t, conn, models.EventGameJoined)
	var joinedPayload struct {
		GameID   string      `json:"gameId"`
		GameInfo models.Game `json:"gameInfo"`
	}
	if err := json.Unmarshal(joined.Data, &joinedPayload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(joinedPayload.GameInfo.Players) != 1 {
		t.Fatalf("expected one seated player, got %+v", joinedPayload.GameInfo.Players)
	}

	// claiming before start is rejected without side effects
	send(t, conn, models.EventClaimTile, models.ClaimTileRequest{GameID: gameID, TileID: 0})
	notActive := awaitEvent(t, conn, models.EventTileClaimed)
	var claimPayload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	json.Unmarshal(notActive.Data, &claimPayload)
	if claimPayload.Success || claimPayload.Message != "Game is not active" {
		t.Fatalf("expected not-active rejection, got %+v", claimPayload)
	}

	// start
	send(t, conn, models.EventStartGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, conn, models.EventGameStarted)

	// claim succeeds and bumps the score
	send(t, conn, models.EventClaimTile, models.ClaimTileRequest{GameID: gameID, TileID: 0})
	claimed := awaitEvent(t, conn, models.EventTileClaimed)
	var successPayload struct {
		Success bool         `json:"success"`
		Tile    *models.Tile `json:"tile"`
	}
	if err := json.Unmarshal(claimed.Data, &successPayload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !successPayload.Success || successPayload.Tile == nil || successPayload.Tile.TileID != 0 {
		t.Fatalf("expected successful claim of tile 0, got %+v", successPayload)
	}
	score := awaitEvent(t, conn, models.EventScoreUpdate)
	var scorePayload struct {
		Score int `json:"score"`
	}
	json.Unmarshal(score.Data, &scorePayload)
	if scorePayload.Score != 1 {
		t.Fatalf("expected score 1, got %d", scorePayload.Score)
	}

	// second claim on the same tile loses
	send(t, conn, models.EventClaimTile, models.ClaimTileRequest{GameID: gameID, TileID: 0})
	lost := awaitEvent(t, conn, models.EventTileClaimed)
	json.Unmarshal(lost.Data, &claimPayload)
	if claimPayload.Success || claimPayload.Message != "Tile already claimed" {
		t.Fatalf("expected already-claimed rejection, got %+v", claimPayload)
	}

	// out-of-range tile id is a caller error
	send(t, conn, models.EventClaimTile, models.ClaimTileRequest{GameID: gameID, TileID: 99})
	errEvent := awaitEvent(t, conn, models.EventError)
	var errPayload models.ErrorPayload
	json.Unmarshal(errEvent.Data, &errPayload)
	if errPayload.Message != "Invalid tile ID" {
		t.Fatalf("expected invalid tile error, got %+v", errPayload)
	}

	// leaderboard reflects the single claim
	send(t, conn, models.EventGetLeaderboard, models.GameRequest{GameID: gameID})
	lb := awaitEvent(t, conn, models.EventLeaderboardUpdate)
	var lbPayload struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	if err := json.Unmarshal(lb.Data, &lbPayload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(lbPayload.Leaderboard) != 1 || lbPayload.Leaderboard[0].Score != 1 || lbPayload.Leaderboard[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", lbPayload.Leaderboard)
	}
	if lbPayload.Leaderboard[0].Username != "alice" {
		t.Fatalf("expected enriched entry, got %+v", lbPayload.Leaderboard[0])
	}
}

func TestClaimRequiresMembership(t *testing.T) {
	server := newTestServer(t)

	creator := dial(t, server, "alice")
	awaitEvent(t, creator, models.EventUserJoined)
	send(t, creator, models.EventCreateGame, models.CreateGameRequest{})
	created := awaitEvent(t, creator, models.EventGameCreated)
	var createdPayload struct {
		Game models.Game `json:"game"`
	}
	json.Unmarshal(created.Data, &createdPayload)
	gameID := createdPayload.Game.GameID
	send(t, creator, models.EventJoinGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, creator, models.EventGameJoined)
	send(t, creator, models.EventStartGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, creator, models.EventGameStarted)

	// A connection that never joined the room cannot claim.
	stranger := dial(t, server, "mallory")
	awaitEvent(t, stranger, models.EventUserJoined)
	send(t, stranger, models.EventClaimTile, models.ClaimTileRequest{GameID: gameID, TileID: 0})
	errEvent := awaitEvent(t, stranger, models.EventError)
	var errPayload models.ErrorPayload
	json.Unmarshal(errEvent.Data, &errPayload)
	if errPayload.Message != "You are not in this game" {
		t.Fatalf("expected membership error, got %+v", errPayload)
	}
}

func TestPlayerJoinedStaysInRoom(t *testing.T) {
	server := newTestServer(t)

	creator := dial(t, server, "alice")
	awaitEvent(t, creator, models.EventUserJoined)
	send(t, creator, models.EventCreateGame, models.CreateGameRequest{})
	created := awaitEvent(t, creator, models.EventGameCreated)
	var createdPayload struct {
		Game models.Game `json:"game"`
	}
	json.Unmarshal(created.Data, &createdPayload)
	gameID := createdPayload.Game.GameID
	send(t, creator, models.EventJoinGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, creator, models.EventGameJoined)

	// Connected but never joined the room.
	bystander := dial(t, server, "carol")
	awaitEvent(t, bystander, models.EventUserJoined)

	joiner := dial(t, server, "bob")
	awaitEvent(t, joiner, models.EventUserJoined)
	send(t, joiner, models.EventJoinGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, joiner, models.EventGameJoined)

	event := awaitEvent(t, creator, models.EventPlayerJoined)
	var joinedPayload struct {
		Player models.Player `json:"player"`
	}
	if err := json.Unmarshal(event.Data, &joinedPayload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if joinedPayload.Player.Username != "bob" {
		t.Fatalf("expected bob's seat announced, got %+v", joinedPayload.Player)
	}

	// The bystander still gets the global presence traffic for bob but
	// must never see the room-scoped seat announcement.
	bystander.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		var ev models.Event
		if err := bystander.ReadJSON(&ev); err != nil {
			break
		}
		if ev.Event == models.EventPlayerJoined {
			t.Fatal("playerJoined leaked outside the game room")
		}
	}
}

func TestCreatorLeavingCancelsWaitingGame(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "alice")
	awaitEvent(t, conn, models.EventUserJoined)

	send(t, conn, models.EventCreateGame, models.CreateGameRequest{})
	created := awaitEvent(t, conn, models.EventGameCreated)
	var createdPayload struct {
		Game models.Game `json:"game"`
	}
	json.Unmarshal(created.Data, &createdPayload)
	gameID := createdPayload.Game.GameID

	send(t, conn, models.EventJoinGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, conn, models.EventGameJoined)

	send(t, conn, models.EventLeaveGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, conn, models.EventGameCancelled)

	send(t, conn, models.EventAvailableGames, nil)
	list := awaitEvent(t, conn, models.EventGamesList)
	var listPayload struct {
		Games []models.Game `json:"games"`
	}
	if err := json.Unmarshal(list.Data, &listPayload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listPayload.Games) != 0 {
		t.Fatalf("expected cancelled game gone from the lobby, got %+v", listPayload.Games)
	}
}

func TestGetTilesPositional(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "alice")
	awaitEvent(t, conn, models.EventUserJoined)

	send(t, conn, models.EventCreateGame, models.CreateGameRequest{})
	created := awaitEvent(t, conn, models.EventGameCreated)
	var createdPayload struct {
		Game models.Game `json:"game"`
	}
	json.Unmarshal(created.Data, &createdPayload)
	gameID := createdPayload.Game.GameID

	send(t, conn, models.EventJoinGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, conn, models.EventGameJoined)
	send(t, conn, models.EventStartGame, models.GameRequest{GameID: gameID})
	awaitEvent(t, conn, models.EventGameStarted)

	send(t, conn, models.EventClaimTile, models.ClaimTileRequest{GameID: gameID, TileID: 2})
	awaitEvent(t, conn, models.EventScoreUpdate)

	send(t, conn, models.EventGetTiles, models.GetTilesRequest{GameID: gameID, TileIDs: []int{2, 3}})
	data := awaitEvent(t, conn, models.EventTilesData)
	var payload struct {
		Tiles []*models.Tile `json:"tiles"`
	}
	if err := json.Unmarshal(data.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Tiles) != 2 {
		t.Fatalf("expected 2 positional results, got %d", len(payload.Tiles))
	}
	if payload.Tiles[0] == nil || payload.Tiles[0].TileID != 2 {
		t.Fatalf("expected tile 2 first, got %+v", payload.Tiles[0])
	}
	if payload.Tiles[1] != nil {
		t.Fatalf("expected nil for unclaimed tile 3, got %+v", payload.Tiles[1])
	}
}
