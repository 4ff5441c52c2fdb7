package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/amaumene/malarr/internal/config"
	"github.com/amaumene/malarr/internal/controllers"
	"github.com/amaumene/malarr/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	syncCtrl *controllers.SyncController
	db       *models.Database
	cfg      *config.Config
	logger   *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(syncCtrl *controllers.SyncController, db *models.Database, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		syncCtrl: syncCtrl,
		db:       db,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Every 5 minutes: run a sync if the configured interval has elapsed.
	// AutoSyncIfDue itself enforces the cadence and skips when a run is
	// already in flight or no credential is available.
	_, err := s.cron.AddFunc("*/5 * * * *", func() {
		s.runAutoSync()
	})
	if err != nil {
		return fmt.Errorf("failed to add sync job: %w", err)
	}

	// Daily: trim the activity log to the configured retention
	_, err = s.cron.AddFunc("0 4 * * *", func() {
		s.runActivityPrune()
	})
	if err != nil {
		return fmt.Errorf("failed to add activity prune job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Run an initial sync immediately if one is due
	go s.runAutoSync()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runAutoSync executes the auto-sync job
func (s *Scheduler) runAutoSync() {
	ctx := context.Background()

	result, err := s.syncCtrl.AutoSyncIfDue(ctx, s.cfg.SyncInterval)
	switch {
	case errors.Is(err, controllers.ErrSyncInProgress):
		s.logger.Debug("Sync already running, skipping")
	case errors.Is(err, controllers.ErrPartialSync):
		s.logger.WithFields(logrus.Fields{
			"pushed": result.Pushed,
			"failed": result.Failed,
		}).Warn("Sync completed partially")
	case err != nil:
		s.logger.WithError(err).Error("Sync job failed")
	case result != nil:
		s.logger.WithFields(logrus.Fields{
			"fetched": result.Fetched,
			"pushed":  result.Pushed,
		}).Info("Sync job completed")
	}
}

// runActivityPrune executes the activity log retention job
func (s *Scheduler) runActivityPrune() {
	if err := s.db.PruneActivity(s.cfg.ActivityKeep); err != nil {
		s.logger.WithError(err).Error("Activity prune failed")
	} else {
		s.logger.WithField("keep", s.cfg.ActivityKeep).Debug("Activity log pruned")
	}
}
