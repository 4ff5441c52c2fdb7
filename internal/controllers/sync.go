package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/malarr/internal/models"
	"github.com/amaumene/malarr/internal/policy"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSyncInProgress is returned when a run is requested while another
	// is still in flight.
	ErrSyncInProgress = errors.New("sync already running")

	// ErrPartialSync is returned when the pull succeeded but one or more
	// pushes failed; the failed rows stay unsynced for the next run.
	ErrPartialSync = errors.New("partial sync")
)

// Remote is the slice of the MAL client the sync engine needs
type Remote interface {
	FetchUserList(ctx context.Context, pageSize int) ([]policy.RemoteEntry, error)
	PushStatus(ctx context.Context, malID int, status models.Status, episodesWatched, score int) error
	HasValidToken() bool
}

// SyncController orchestrates pull-then-push reconciliation with MAL
type SyncController struct {
	db       *models.Database
	remote   Remote
	pageSize int
	logger   *logrus.Logger

	// mu admits one run at a time; concurrent requests are rejected, not
	// queued.
	mu sync.Mutex
}

// NewSyncController creates a new sync controller
func NewSyncController(db *models.Database, remote Remote, pageSize int, logger *logrus.Logger) *SyncController {
	return &SyncController{
		db:       db,
		remote:   remote,
		pageSize: pageSize,
		logger:   logger,
	}
}

// SyncResult summarizes one sync run
type SyncResult struct {
	Fetched int `json:"fetched"` // rows pulled from MAL
	Merged  int `json:"merged"`  // rows whose local state changed on merge
	Pushed  int `json:"pushed"`  // local changes uploaded and confirmed
	Failed  int `json:"failed"`  // uploads that failed this run
	Pending int `json:"pending"` // uploadable changes still unsynced
}

// SyncStatus is the no-network status summary for the UI layer
type SyncStatus struct {
	Authenticated bool      `json:"authenticated"`
	Pending       int       `json:"pending"`
	LastSyncAt    time.Time `json:"last_sync_at"`
}

// RunSync performs one full pull-merge-push cycle. A pull failure aborts the
// run before anything is uploaded. Per-row push failures are logged and
// skipped; if any remain the run returns ErrPartialSync alongside the result
// so the caller can tell "did nothing" from "did most of the work".
func (c *SyncController) RunSync(ctx context.Context) (*SyncResult, error) {
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	c.logger.Info("Starting MAL sync")

	entries, err := c.remote.FetchUserList(ctx, c.pageSize)
	if err != nil {
		return nil, fmt.Errorf("sync failed, nothing changed: %w", err)
	}

	result := &SyncResult{Fetched: len(entries)}

	for _, entry := range entries {
		entry := entry
		changed, err := c.db.ApplyMerge(entry.MALID, func(local *models.Anime) (*models.Anime, bool) {
			return policy.MergeRemote(local, entry)
		})
		if err != nil {
			c.logger.WithError(err).WithField("mal_id", entry.MALID).Error("Failed to merge row")
			continue
		}
		if changed {
			result.Merged++
		}
	}

	unsynced, err := c.db.ListUnsynced(policy.RemoteSyncable())
	if err != nil {
		return result, fmt.Errorf("failed to read unsynced rows: %w", err)
	}

	for _, anime := range unsynced {
		if err := c.remote.PushStatus(ctx, anime.MALID, anime.Status, anime.EpisodesWatched, anime.Score); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"mal_id": anime.MALID,
				"title":  anime.Title,
			}).Warn("Push failed, row stays pending")
			result.Failed++
			continue
		}

		if err := c.db.MarkSynced(anime.MALID); err != nil {
			c.logger.WithError(err).WithField("mal_id", anime.MALID).Error("Failed to mark row synced")
			continue
		}
		result.Pushed++
	}

	if err := c.db.SetLastSyncAt(time.Now()); err != nil {
		c.logger.WithError(err).Error("Failed to persist last sync time")
	}

	pending, err := c.db.ListUnsynced(policy.RemoteSyncable())
	if err == nil {
		result.Pending = len(pending)
	}

	c.logger.WithFields(logrus.Fields{
		"fetched": result.Fetched,
		"merged":  result.Merged,
		"pushed":  result.Pushed,
		"failed":  result.Failed,
	}).Info("MAL sync completed")

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: uploaded %d of %d pending updates",
			ErrPartialSync, result.Pushed, result.Pushed+result.Failed)
	}

	return result, nil
}

// AutoSyncIfDue runs a full sync only when the last run is older than
// minInterval and a usable credential is on hand. Otherwise it is a no-op
// and returns a nil result.
func (c *SyncController) AutoSyncIfDue(ctx context.Context, minInterval time.Duration) (*SyncResult, error) {
	if !c.remote.HasValidToken() {
		c.logger.Debug("Auto-sync skipped, not authenticated")
		return nil, nil
	}

	last, err := c.db.LastSyncAt()
	if err != nil {
		return nil, err
	}
	if time.Since(last) < minInterval {
		c.logger.Debug("Auto-sync skipped, not due yet")
		return nil, nil
	}

	return c.RunSync(ctx)
}

// Status reports the sync engine state without any network I/O
func (c *SyncController) Status() (*SyncStatus, error) {
	pending, err := c.db.ListUnsynced(policy.RemoteSyncable())
	if err != nil {
		return nil, err
	}

	last, err := c.db.LastSyncAt()
	if err != nil {
		return nil, err
	}

	return &SyncStatus{
		Authenticated: c.remote.HasValidToken(),
		Pending:       len(pending),
		LastSyncAt:    last,
	}, nil
}
