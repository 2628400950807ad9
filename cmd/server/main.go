// Package main implements the entry point for the tasksync API server,
// which serves the task-management REST API and the realtime push stream
// that propagates task mutations to connected clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/tasksync/tasksync-api/internal/config"
	"github.com/tasksync/tasksync-api/internal/platform/logger"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "apply pending database migrations and exit")
	flag.Parse()

	if err := run(*migrateOnly); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(migrateOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if _, err := logger.Setup(cfg.Server); err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	app, err := newApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := runMigrations(app.db, app.logger); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if migrateOnly {
		app.logger.Info("migrations applied, exiting")
		app.cleanup()
		return nil
	}

	return app.startHTTPServer(context.Background(), app.setupRouter())
}
