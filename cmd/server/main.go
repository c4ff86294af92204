// Package main implements the entry point for the Restyle API server,
// which accepts image transformation requests and processes them
// asynchronously through a styled-image generation pipeline.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/artivo/restyle-api/internal/config"
	"github.com/artivo/restyle-api/internal/platform/logger"
)

// main initializes configuration and logging, optionally runs database
// migrations, and otherwise wires the application together and starts
// the HTTP server.
func main() {
	migrateCmd := flag.String("migrate", "",
		"run a database migration command (up, down, status, version) and exit")
	flag.Parse()

	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if *migrateCmd != "" {
		if err := handleMigrations(cfg, appLogger, *migrateCmd); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	ctx := context.Background()

	// An empty database URL selects the in-memory stores, which is the
	// single-process development mode.
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = setupAppDatabase(cfg, appLogger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
	}

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration and sets up structured logging.
// Returns the loaded config, the root logger, and any initialization error.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"worker_count", cfg.Pipeline.WorkerCount)

	if cfg.Database.URL != "" {
		slog.Debug("Database configuration", "url_present", true)
	}
	if cfg.Transform.GeminiAPIKey != "" {
		slog.Debug("Transform configuration", "api_key_present", true)
	}

	return cfg, appLogger, nil
}
