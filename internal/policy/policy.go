// Package policy partitions watch statuses into the set the MAL API
// understands and the local-only extensions, and merges remote list rows
// against local state accordingly. It is pure, no I/O.
package policy

import (
	"time"

	"github.com/amaumene/malarr/internal/models"
)

var remoteSyncable = map[models.Status]bool{
	models.StatusWatching:    true,
	models.StatusCompleted:   true,
	models.StatusOnHold:      true,
	models.StatusDropped:     true,
	models.StatusPlanToWatch: true,
}

var localOnly = map[models.Status]bool{
	models.StatusRewatching:   true,
	models.StatusFavorite:     true,
	models.StatusPriorityHigh: true,
	models.StatusPriorityLow:  true,
}

// IsRemoteSyncable reports whether MAL accepts the status on upload
func IsRemoteSyncable(status models.Status) bool {
	return remoteSyncable[status]
}

// IsLocalOnly reports whether the status is a local extension MAL never sees
func IsLocalOnly(status models.Status) bool {
	return localOnly[status]
}

// RemoteSyncable returns the statuses MAL accepts, in a stable order
func RemoteSyncable() []models.Status {
	return []models.Status{
		models.StatusWatching,
		models.StatusCompleted,
		models.StatusOnHold,
		models.StatusDropped,
		models.StatusPlanToWatch,
	}
}

// LocalOnly returns the local extension statuses, in a stable order
func LocalOnly() []models.Status {
	return []models.Status{
		models.StatusRewatching,
		models.StatusFavorite,
		models.StatusPriorityHigh,
		models.StatusPriorityLow,
	}
}

// RemoteEntry is one row of the user's remote MAL list, already flattened
// from the wire shape.
type RemoteEntry struct {
	MALID           int
	Title           string
	Status          models.Status
	EpisodesWatched int
	TotalEpisodes   int
	Score           int

	ImageURL   string
	Synopsis   string
	Genres     []string
	Studios    []string
	Year       int
	Rank       int
	Popularity int
}

// MergeRemote merges a freshly fetched remote row against the local row, if
// any. The returned row is what should be stored; changed reports whether it
// differs from the local row at all, so idempotent re-merges write nothing.
//
// The rules, in order:
//   - no local row: adopt the remote values, Synced=true;
//   - local status is remote-syncable: remote wins for status, episodes
//     watched and score, Synced=true;
//   - local status is a local-only extension: the local fields always win and
//     Synced stays false, the row does not reflect remote truth.
func MergeRemote(local *models.Anime, remote RemoteEntry) (*models.Anime, bool) {
	now := time.Now()

	if local == nil {
		status := remote.Status
		if !models.ValidStatus(status) {
			status = models.StatusPlanToWatch
		}
		return &models.Anime{
			MALID:           remote.MALID,
			Title:           remote.Title,
			Status:          status,
			EpisodesWatched: remote.EpisodesWatched,
			TotalEpisodes:   remote.TotalEpisodes,
			Score:           remote.Score,
			ImageURL:        remote.ImageURL,
			Synopsis:        remote.Synopsis,
			Genres:          remote.Genres,
			Studios:         remote.Studios,
			Year:            remote.Year,
			Rank:            remote.Rank,
			Popularity:      remote.Popularity,
			AddedAt:         now,
			UpdatedAt:       now,
			Synced:          true,
		}, true
	}

	merged := *local

	if IsLocalOnly(local.Status) {
		if !merged.Synced {
			return &merged, false
		}
		merged.Synced = false
		return &merged, true
	}

	if models.ValidStatus(remote.Status) {
		merged.Status = remote.Status
	}
	merged.EpisodesWatched = remote.EpisodesWatched
	merged.Score = remote.Score
	if remote.TotalEpisodes > 0 {
		merged.TotalEpisodes = remote.TotalEpisodes
	}
	merged.Synced = true

	if merged.Status != local.Status ||
		merged.EpisodesWatched != local.EpisodesWatched ||
		merged.Score != local.Score {
		merged.UpdatedAt = now
		return &merged, true
	}

	if merged.TotalEpisodes != local.TotalEpisodes || !local.Synced {
		return &merged, true
	}

	return &merged, false
}
