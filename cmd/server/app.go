package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tasksync/tasksync-api/internal/config"
	"github.com/tasksync/tasksync-api/internal/platform/postgres"
	"github.com/tasksync/tasksync-api/internal/realtime"
	"github.com/tasksync/tasksync-api/internal/service"
	"github.com/tasksync/tasksync-api/internal/service/auth"
	"github.com/tasksync/tasksync-api/internal/store"
)

// application holds the shared dependencies of the server: configuration,
// stores, services, and the realtime push layer. It is assembled once at
// startup and torn down by cleanup.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	userStore store.UserStore
	taskStore store.TaskStore

	jwtService auth.JWTService

	promRegistry *prometheus.Registry
	registry     *realtime.Registry
	emitter      *realtime.Emitter
	gate         *realtime.Gate

	taskService service.TaskService
	userService service.UserService
}

// newApplication wires the full dependency graph from configuration.
func newApplication(cfg *config.Config) (*application, error) {
	log := slog.Default()

	db, err := setupAppDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	userStore := postgres.NewPostgresUserStore(db, log)
	taskStore := postgres.NewPostgresTaskStore(db, log)

	// Realtime push layer. The registry has an explicit lifecycle: it is
	// created here and closed in cleanup so in-flight connections drain
	// before the process exits.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := realtime.NewMetrics(promRegistry)
	registry := realtime.NewRegistry(log, metrics)
	emitter := realtime.NewEmitter(registry, log, metrics)
	gate := realtime.NewGate(jwtService, userStore, registry, cfg.Realtime, log)

	taskService := service.NewTaskService(taskStore, userStore, db, emitter, log)
	userService := service.NewUserService(userStore, taskStore, auth.NewBcryptVerifier(), emitter, log)

	return &application{
		config:       cfg,
		logger:       log,
		db:           db,
		userStore:    userStore,
		taskStore:    taskStore,
		jwtService:   jwtService,
		promRegistry: promRegistry,
		registry:     registry,
		emitter:      emitter,
		gate:         gate,
		taskService:  taskService,
		userService:  userService,
	}, nil
}

// cleanup releases application resources in reverse dependency order.
func (app *application) cleanup() {
	app.registry.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database connection", "error", err)
	}
}
