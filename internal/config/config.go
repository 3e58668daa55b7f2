package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all server settings, loaded from the environment
type Config struct {
	Port int `env:"TAPTILE_PORT" envDefault:"8080"`

	GridWidth  int `env:"TAPTILE_GRID_WIDTH" envDefault:"20"`
	GridHeight int `env:"TAPTILE_GRID_HEIGHT" envDefault:"25"`

	// MaxPlayers caps seats per game; zero means unlimited
	MaxPlayers int `env:"TAPTILE_MAX_PLAYERS" envDefault:"0"`

	GameDuration  time.Duration `env:"TAPTILE_GAME_DURATION" envDefault:"5m"`
	BatchInterval time.Duration `env:"TAPTILE_BATCH_INTERVAL" envDefault:"100ms"`

	// SessionTTL bounds the lifetime of an identity record
	SessionTTL time.Duration `env:"TAPTILE_SESSION_TTL" envDefault:"1h"`
	// WaitingTTL bounds how long an ungrown lobby survives before
	// self-expiring
	WaitingTTL time.Duration `env:"TAPTILE_WAITING_TTL" envDefault:"3m"`
	// EndGrace extends a started game's record past its duration so late
	// leaderboard reads still resolve
	EndGrace time.Duration `env:"TAPTILE_END_GRACE" envDefault:"5m"`

	LeaderboardLimit int `env:"TAPTILE_LEADERBOARD_LIMIT" envDefault:"10"`
}

// Load parses the configuration from environment variables
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GridWidth <= 0 || cfg.GridHeight <= 0 {
		return Config{}, fmt.Errorf("grid dimensions must be positive, got %dx%d", cfg.GridWidth, cfg.GridHeight)
	}
	if cfg.BatchInterval <= 0 {
		return Config{}, fmt.Errorf("batch interval must be positive, got %s", cfg.BatchInterval)
	}
	return cfg, nil
}
