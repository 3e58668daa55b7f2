package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"taptile/internal/api"
	"taptile/internal/batch"
	"taptile/internal/broadcast"
	"taptile/internal/config"
	"taptile/internal/game"
	"taptile/internal/grid"
	"taptile/internal/presence"
	"taptile/internal/store"
	"taptile/internal/ws"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Stores
	sessions := store.NewSessions()
	games := store.NewGames()
	grids := store.NewGrids()

	// Services
	hub := broadcast.NewHub()
	aggregator := batch.New(cfg.BatchInterval, hub)
	presenceService := presence.NewService(sessions, cfg.SessionTTL)
	gameService := game.NewService(games, grids, presenceService, hub, aggregator, game.Options{
		DefaultGridWidth:  cfg.GridWidth,
		DefaultGridHeight: cfg.GridHeight,
		DefaultMaxPlayers: cfg.MaxPlayers,
		Duration:          cfg.GameDuration,
		WaitingTTL:        cfg.WaitingTTL,
		EndGrace:          cfg.EndGrace,
		LeaderboardLimit:  cfg.LeaderboardLimit,
	})
	gridService := grid.NewService(grids, gameService)
	wsHandler := ws.NewHandler(presenceService, gameService, gridService, aggregator, hub)
	apiHandler := api.NewHandler(gameService, gridService)

	ctx := context.Background()
	go aggregator.Run(ctx)
	go sweep(ctx, sessions, gameService)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)
	apiHandler.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server starting on http://localhost%s/", addr)
	log.Fatal(http.ListenAndServe(addr, api.CORSMiddleware(mux)))
}

// sweep periodically evicts expired sessions and games
func sweep(ctx context.Context, sessions *store.Sessions, games *game.Service) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				log.Printf("sweep: evicted %d expired sessions", n)
			}
			if removed := games.Sweep(); len(removed) > 0 {
				log.Printf("sweep: evicted %d expired games", len(removed))
			}
		}
	}
}
