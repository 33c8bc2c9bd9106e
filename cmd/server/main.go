// Package main implements the entry point for the genbatch server, the
// orchestrator for bounded-concurrency batch generation tasks.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/forgeworks/genbatch/internal/config"
	"github.com/forgeworks/genbatch/internal/platform/logger"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	if err := app.startHTTPServer(context.Background(), app.setupRouter()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration, sets up logging and assembles the
// application components.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"concurrency_limit", cfg.Engine.ConcurrencyLimit,
		"database_configured", cfg.Database.URL != "")

	return newApplication(cfg, appLogger)
}
