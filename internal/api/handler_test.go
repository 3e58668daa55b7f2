package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taptile/internal/batch"
	"taptile/internal/broadcast"
	"taptile/internal/game"
	"taptile/internal/grid"
	"taptile/internal/models"
	"taptile/internal/presence"
	"taptile/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *game.Service, *grid.Service) {
	t.Helper()

	grids := store.NewGrids()
	hub := broadcast.NewHub()
	presenceService := presence.NewService(store.NewSessions(), time.Hour)
	gameService := game.NewService(store.NewGames(), grids, presenceService, hub, batch.New(time.Hour, hub), game.Options{
		DefaultGridWidth:  2,
		DefaultGridHeight: 2,
		Duration:          time.Hour,
		WaitingTTL:        time.Minute,
		EndGrace:          time.Minute,
		LeaderboardLimit:  10,
	})
	t.Cleanup(gameService.Close)
	gridService := grid.NewService(grids, gameService)

	mux := http.NewServeMux()
	NewHandler(gameService, gridService).RegisterRoutes(mux)
	server := httptest.NewServer(CORSMiddleware(mux))
	t.Cleanup(server.Close)
	return server, gameService, gridService
}

func TestListGames(t *testing.T) {
	server, games, _ := newTestServer(t)
	created := games.Create("creator", models.CreateGameRequest{})

	resp, err := http.Get(server.URL + "/api/games")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Games []models.Game `json:"games"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Games) != 1 || payload.Games[0].GameID != created.GameID {
		t.Fatalf("expected the created game, got %+v", payload.Games)
	}
}

func TestGetGameNotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/games/absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetLeaderboard(t *testing.T) {
	server, games, engine := newTestServer(t)
	created := games.Create("creator", models.CreateGameRequest{})
	games.Start(created.GameID)
	engine.Claim(created.GameID, 0, models.Player{UserID: "a", Username: "alice"})

	resp, err := http.Get(server.URL + "/api/games/" + created.GameID + "/leaderboard")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Leaderboard) != 1 || payload.Leaderboard[0].Score != 1 {
		t.Fatalf("unexpected leaderboard %+v", payload.Leaderboard)
	}
}

func TestCORSHeaders(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/games")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}
