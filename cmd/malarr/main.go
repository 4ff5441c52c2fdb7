package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amaumene/malarr/internal/api"
	"github.com/amaumene/malarr/internal/config"
	"github.com/amaumene/malarr/internal/controllers"
	"github.com/amaumene/malarr/internal/models"
	"github.com/amaumene/malarr/internal/scheduler"
	"github.com/amaumene/malarr/internal/services/mal"
	"github.com/amaumene/malarr/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Malarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize MAL client
	malClient, err := mal.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MAL client: %w", err)
	}
	if !malClient.HasValidToken() {
		logger.WithField("token_file", cfg.TokenFile).Warn("No MAL credential found, sync disabled until a token is provided")
	}
	logger.Info("MAL client initialized")

	// 5. Initialize sync controller
	syncCtrl := controllers.NewSyncController(db, malClient, cfg.PageSize, logger)
	logger.Info("Sync controller initialized")

	// 6. Initialize scheduler
	sched := scheduler.NewScheduler(syncCtrl, db, cfg, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 7. Initialize HTTP server
	server := api.NewServer(cfg, db, syncCtrl, malClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Malarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Malarr stopped")
	return nil
}
