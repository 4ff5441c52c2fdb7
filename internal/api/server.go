package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amaumene/malarr/internal/api/handlers"
	"github.com/amaumene/malarr/internal/api/middleware"
	"github.com/amaumene/malarr/internal/config"
	"github.com/amaumene/malarr/internal/controllers"
	"github.com/amaumene/malarr/internal/models"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	db       *models.Database
	syncCtrl *controllers.SyncController
	catalog  handlers.Catalog
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, db *models.Database, syncCtrl *controllers.SyncController, catalog handlers.Catalog, logger *logrus.Logger) *Server {
	s := &Server{
		db:       db,
		syncCtrl: syncCtrl,
		catalog:  catalog,
		logger:   logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health check
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	// Sync status + list statistics
	statusHandler := handlers.NewStatusHandler(s.db, s.syncCtrl, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	// Tracked list
	animeHandler := handlers.NewAnimeHandler(s.db, s.catalog, s.logger)
	mux.HandleFunc("/api/anime", animeHandler.ServeHTTP)

	animeItemHandler := handlers.NewAnimeItemHandler(s.db, s.logger)
	mux.HandleFunc("/api/anime/", animeItemHandler.ServeHTTP)

	// Activity log
	activityHandler := handlers.NewActivityHandler(s.db, s.logger)
	mux.HandleFunc("/api/activity", activityHandler.ServeHTTP)

	// Manual sync trigger
	syncHandler := handlers.NewSyncHandler(s.syncCtrl, s.logger)
	mux.HandleFunc("/api/sync", syncHandler.ServeHTTP)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
