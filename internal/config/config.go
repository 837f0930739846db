package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "hangar.db"

	envListenAddr      = "HANGAR_LISTEN_ADDR"
	envDBPath          = "HANGAR_DB_PATH"
	envLogLevel        = "HANGAR_LOG_LEVEL"
	envDefaultEntity   = "HANGAR_DEFAULT_ENTITY"
	envDefaultProject  = "HANGAR_DEFAULT_PROJECT"
	envMaxInFlight     = "HANGAR_MAX_IN_FLIGHT"
	envPollInterval    = "HANGAR_POLL_INTERVAL"
	envMaxPollInterval = "HANGAR_MAX_POLL_INTERVAL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	LogLevel        slog.Level
	DefaultEntity   string
	DefaultProject  string
	MaxInFlight     int
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.DefaultEntity = os.Getenv(envDefaultEntity)
	cfg.DefaultProject = os.Getenv(envDefaultProject)
	if v := os.Getenv(envMaxInFlight); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxInFlight = n
		}
	}
	if v := os.Getenv(envPollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv(envMaxPollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MaxPollInterval = d
		}
	}

	return cfg
}

// Setting implements the launcher's settings provider: ambient defaults for
// the target entity and project.
func (c Config) Setting(key string) string {
	switch key {
	case "entity":
		return c.DefaultEntity
	case "project":
		return c.DefaultProject
	}
	return ""
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
