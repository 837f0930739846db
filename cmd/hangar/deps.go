package main

import (
	"log/slog"
	"os"

	"github.com/seantiz/hangar/internal/backend"
	"github.com/seantiz/hangar/internal/backend/local"
	"github.com/seantiz/hangar/internal/config"
	"github.com/seantiz/hangar/internal/launcher"
	"github.com/seantiz/hangar/internal/project"
	"github.com/seantiz/hangar/internal/store"
)

// deps wires the components every subcommand needs.
type deps struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *backend.Registry
	launcher *launcher.Launcher
}

func buildDeps() deps {
	cfg := config.Load()
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	registry := backend.NewRegistry()
	registry.Register(local.BackendName, local.New(logger))

	l := launcher.New(project.LocalResolver{}, cfg, registry, logger)

	return deps{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		launcher: l,
	}
}

func openStore(cfg config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DBPath)
}
