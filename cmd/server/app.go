package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/forgeworks/genbatch/internal/capability"
	"github.com/forgeworks/genbatch/internal/config"
	"github.com/forgeworks/genbatch/internal/engine"
	"github.com/forgeworks/genbatch/internal/events"
	"github.com/forgeworks/genbatch/internal/platform/execution"
	"github.com/forgeworks/genbatch/internal/platform/memstore"
	"github.com/forgeworks/genbatch/internal/platform/postgres"
	"github.com/forgeworks/genbatch/internal/store"
)

// application holds the wired components of the server.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	db       *sql.DB // nil when running on the in-memory stores
	engine   *engine.Engine
	bus      *events.Bus
	fanout   *events.FanoutNotifier
	registry *capability.Registry
}

// newApplication assembles stores, the execution client, the engine and the
// completion bus. With a database URL configured the stores are
// postgres-backed and migrations run first; without one the service runs
// entirely in memory.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var taskStore store.TaskStore
	var resourceStore store.ResourceStore

	if cfg.Database.URL != "" {
		db, err := setupAppDatabase(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
		if err := applyMigrations(db, logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		app.db = db
		taskStore = postgres.NewTaskStore(db)
		resourceStore = postgres.NewResourceStore(db)
	} else {
		logger.Warn("no database configured, running on in-memory stores")
		taskStore = memstore.NewTaskStore()
		resourceStore = memstore.NewResourceStore()
	}

	app.registry = capability.NewDefaultRegistry()
	app.fanout = events.NewFanoutNotifier(64, logger)
	notifier := events.NewMultiNotifier(events.NewLogNotifier(logger), app.fanout)

	execClient := execution.NewClient(cfg.Executor, logger)

	app.engine = engine.New(
		engine.Config{
			ConcurrencyLimit: cfg.Engine.ConcurrencyLimit,
			MaxRetries:       cfg.Engine.MaxRetries,
			RetryDelay:       cfg.Engine.RetryDelay(),
		},
		taskStore,
		resourceStore,
		execClient,
		app.registry,
		notifier,
		logger,
	)

	app.bus = events.NewBus(logger)
	app.bus.Subscribe(app.engine)

	return app, nil
}

// cleanup releases application resources. Safe to call once after the server
// has stopped.
func (app *application) cleanup() {
	app.engine.Close()
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}
