package ctxsync

import (
	"os"
	"strconv"
	"time"
)

// Config holds engine, client and server settings loaded from environment variables.
type Config struct {
	ServerURL        string
	LocalPath        string
	DatabaseURL      string
	ListenAddr       string
	LogLevel         string
	RetentionLimit   int
	AutosaveInterval time.Duration
	TierTimeout      time.Duration
	TeardownTimeout  time.Duration
	ContextWindow    time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerURL:        "http://localhost:8080",
		LocalPath:        "ctxsync.db",
		ListenAddr:       ":8080",
		LogLevel:         "info",
		RetentionLimit:   50,
		AutosaveInterval: 30 * time.Second,
		TierTimeout:      10 * time.Second,
		TeardownTimeout:  5 * time.Second,
		ContextWindow:    24 * time.Hour,
	}
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("CTXSYNC_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("CTXSYNC_LOCAL_DB"); v != "" {
		cfg.LocalPath = v
	}
	if v := os.Getenv("CTXSYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CTXSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if v := os.Getenv("CTXSYNC_RETENTION"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RetentionLimit = parsed
		}
	}

	cfg.AutosaveInterval = envDuration("CTXSYNC_AUTOSAVE_INTERVAL", cfg.AutosaveInterval)
	cfg.TierTimeout = envDuration("CTXSYNC_TIER_TIMEOUT", cfg.TierTimeout)
	cfg.TeardownTimeout = envDuration("CTXSYNC_TEARDOWN_TIMEOUT", cfg.TeardownTimeout)
	cfg.ContextWindow = envDuration("CTXSYNC_CONTEXT_WINDOW", cfg.ContextWindow)

	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
