// Package api exposes a small read-only HTTP surface next to the
// websocket protocol: lobby discovery and game state for clients that
// poll before connecting.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"taptile/internal/game"
	"taptile/internal/grid"
)

// Handler handles HTTP requests
type Handler struct {
	games *game.Service
	grid  *grid.Service
}

// NewHandler creates a new handler
func NewHandler(games *game.Service, gr *grid.Service) *Handler {
	return &Handler{games: games, grid: gr}
}

// RegisterRoutes sets up the routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/games", h.handleListGames)
	mux.HandleFunc("GET /api/games/{gameID}", h.handleGetGame)
	mux.HandleFunc("GET /api/games/{gameID}/leaderboard", h.handleLeaderboard)
	mux.HandleFunc("GET /api/games/{gameID}/tiles", h.handleTiles)
}

// handleListGames returns the joinable lobby
func (h *Handler) handleListGames(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]any{"games": h.games.ListWaiting()})
}

func (h *Handler) handleGetGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")
	g, ok := h.games.Get(gameID)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, map[string]any{
		"game":        g,
		"remainingMs": h.games.RemainingTime(gameID).Milliseconds(),
	})
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")
	if _, ok := h.games.Get(gameID); !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, map[string]any{
		"gameId":      gameID,
		"leaderboard": h.games.Leaderboard(gameID, 0),
	})
}

func (h *Handler) handleTiles(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")
	if _, ok := h.games.Get(gameID); !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, map[string]any{
		"gameId": gameID,
		"tiles":  h.grid.AllTiles(gameID),
		"asOf":   time.Now().UnixMilli(),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// CORSMiddleware allows browser clients served from other origins
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
