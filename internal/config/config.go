package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"idleforge/internal/offline"
)

type EngineConfig struct {
	CatalogPath     string
	PrimaryResource string
	Offline         offline.Config
}

type APIConfig struct {
	Engine      EngineConfig
	Addr        string
	DatabaseURL string
	PlayerID    string
	TickEvery   time.Duration
	SaveEvery   time.Duration
	RateLimit   float64
	RateBurst   int
}

type WorkerConfig struct {
	Engine      EngineConfig
	DatabaseURL string
	Every       time.Duration
	RunOnce     bool
}

type CLIConfig struct {
	Engine     EngineConfig
	Home       string
	APIBaseURL string
}

func LoadEngineFromEnv() EngineConfig {
	def := offline.DefaultConfig()
	return EngineConfig{
		CatalogPath:     strings.TrimSpace(os.Getenv("FORGE_CATALOG_PATH")),
		PrimaryResource: strings.TrimSpace(os.Getenv("FORGE_PRIMARY_RESOURCE")),
		Offline: offline.Config{
			CappedHours: envFloatDefault("FORGE_OFFLINE_CAP_HOURS", def.CappedHours),
			Efficiency:  envFloatDefault("FORGE_OFFLINE_EFFICIENCY", def.Efficiency),
			MinimumTime: envDurationDefault("FORGE_OFFLINE_MIN_TIME", def.MinimumTime),
		},
	}
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("FORGE_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Engine:      LoadEngineFromEnv(),
		Addr:        addr,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PlayerID:    envDefault("FORGE_PLAYER_ID", "local"),
		TickEvery:   envDurationDefault("FORGE_TICK_EVERY", time.Second),
		SaveEvery:   envDurationDefault("FORGE_SAVE_EVERY", 30*time.Second),
		RateLimit:   envFloatDefault("FORGE_RATE_LIMIT", 20),
		RateBurst:   envIntDefault("FORGE_RATE_BURST", 40),
	}
	if cfg.TickEvery <= 0 {
		return cfg, fmt.Errorf("FORGE_TICK_EVERY must be positive")
	}
	if cfg.RateLimit <= 0 || cfg.RateBurst <= 0 {
		return cfg, fmt.Errorf("FORGE_RATE_LIMIT and FORGE_RATE_BURST must be positive")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		Engine:      LoadEngineFromEnv(),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Every:       envDurationDefault("FORGE_WORKER_EVERY", 5*time.Minute),
		RunOnce:     envBoolDefault("FORGE_WORKER_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	home := strings.TrimSpace(os.Getenv("FORGE_HOME"))
	if home == "" {
		if dir, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(dir, ".forge")
		} else {
			home = ".forge"
		}
	}
	return CLIConfig{
		Engine:     LoadEngineFromEnv(),
		Home:       home,
		APIBaseURL: strings.TrimRight(envDefault("FORGE_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
