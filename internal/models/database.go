package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// key of the single SyncState record
const syncStateKey = "sync"

// Database wraps the bolthold store holding tracked anime, the activity log
// and the sync bookkeeping record.
type Database struct {
	store *bolthold.Store

	// mu serializes read-modify-write cycles so a user edit and a sync
	// merge touching the same MAL id never interleave into a torn write.
	mu sync.Mutex
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Anime operations

// UpsertAnime inserts or replaces an anime keyed on its MAL id. A pre-existing
// row keeps its AddedAt. New rows are stored exactly as given, so callers that
// want a remote-confirmed row set Synced before calling; everything else
// starts unsynced. Logs an "add" activity event.
func (db *Database) UpsertAnime(anime *Anime, status Status) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now()
	anime.Status = status
	anime.UpdatedAt = now

	var existing Anime
	err := db.store.Get(anime.MALID, &existing)
	switch {
	case err == nil:
		anime.AddedAt = existing.AddedAt
	case errors.Is(err, bolthold.ErrNotFound):
		anime.AddedAt = now
	default:
		return err
	}

	if err := db.store.Upsert(anime.MALID, anime); err != nil {
		return err
	}

	db.logActivity(ActionAdd, anime.MALID, anime.Title, "", string(status))
	return nil
}

// UpdateAnimeStatus partially updates status, episodes watched and/or score.
// Provided fields are validated before anything is written, so a rejected
// update leaves the row untouched. Every applied change clears Synced, bumps
// UpdatedAt and appends one activity event per changed field.
func (db *Database) UpdateAnimeStatus(malID int, status *Status, episodesWatched *int, score *int) error {
	if status != nil && !ValidStatus(*status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *status)
	}
	if episodesWatched != nil && *episodesWatched < 0 {
		return fmt.Errorf("%w: episodes watched must not be negative", ErrInvalidArgument)
	}
	if score != nil && (*score < 0 || *score > 10) {
		return fmt.Errorf("%w: score must be between 0 and 10", ErrInvalidArgument)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var anime Anime
	if err := db.store.Get(malID, &anime); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	old := anime

	if status != nil {
		anime.Status = *status
	}
	if episodesWatched != nil {
		anime.EpisodesWatched = *episodesWatched
	}
	if score != nil {
		anime.Score = *score
	}

	anime.Synced = false
	anime.UpdatedAt = time.Now()

	if err := db.store.Update(malID, &anime); err != nil {
		return err
	}

	if anime.Status != old.Status {
		db.logActivity(ActionUpdateStatus, malID, anime.Title, string(old.Status), string(anime.Status))
	}
	if anime.EpisodesWatched != old.EpisodesWatched {
		db.logActivity(ActionUpdateEpisodes, malID, anime.Title,
			strconv.Itoa(old.EpisodesWatched), strconv.Itoa(anime.EpisodesWatched))
	}
	if anime.Score != old.Score {
		db.logActivity(ActionUpdateScore, malID, anime.Title,
			strconv.Itoa(old.Score), strconv.Itoa(anime.Score))
	}

	return nil
}

// ApplyMerge runs the sync engine's merge as one atomic read-modify-write.
// The row is re-read under the lock and handed to merge (nil when absent), so
// a user edit committed before the merge is always visible to it and an edit
// after it waits for the write. Nothing is written when merge reports no
// change. New rows log an "add" event; merged rows are stored as returned,
// Synced included.
func (db *Database) ApplyMerge(malID int, merge func(local *Anime) (*Anime, bool)) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var local *Anime
	var row Anime
	err := db.store.Get(malID, &row)
	switch {
	case err == nil:
		local = &row
	case errors.Is(err, bolthold.ErrNotFound):
	default:
		return false, err
	}

	merged, changed := merge(local)
	if !changed {
		return false, nil
	}

	if err := db.store.Upsert(malID, merged); err != nil {
		return false, err
	}

	if local == nil {
		db.logActivity(ActionAdd, merged.MALID, merged.Title, "", string(merged.Status))
	}
	return true, nil
}

// RemoveAnime deletes an anime and logs a "remove" event with the last known
// title snapshot.
func (db *Database) RemoveAnime(malID int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var anime Anime
	if err := db.store.Get(malID, &anime); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := db.store.Delete(malID, &Anime{}); err != nil {
		return err
	}

	db.logActivity(ActionRemove, malID, anime.Title, "in_list", "removed")
	return nil
}

// GetAnime retrieves an anime by MAL id
func (db *Database) GetAnime(malID int) (*Anime, error) {
	var anime Anime
	if err := db.store.Get(malID, &anime); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &anime, nil
}

// ListAnime retrieves all tracked anime, optionally filtered to one status,
// most recently updated first.
func (db *Database) ListAnime(status Status) ([]*Anime, error) {
	var animes []*Anime
	var err error
	if status == "" {
		err = db.store.Find(&animes, nil)
	} else {
		err = db.store.Find(&animes, bolthold.Where("Status").Eq(status).Index("Status"))
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(animes, func(i, j int) bool {
		return animes[i].UpdatedAt.After(animes[j].UpdatedAt)
	})

	return animes, nil
}

// ListUnsynced retrieves all rows with pending local changes whose status is
// in the given set.
func (db *Database) ListUnsynced(statuses []Status) ([]*Anime, error) {
	var unsynced []*Anime
	err := db.store.Find(&unsynced, bolthold.Where("Synced").Eq(false).Index("Synced"))
	if err != nil {
		return nil, err
	}

	allowed := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}

	var filtered []*Anime
	for _, anime := range unsynced {
		if allowed[anime.Status] {
			filtered = append(filtered, anime)
		}
	}

	return filtered, nil
}

// MarkSynced sets Synced without touching any other field. A row removed
// between a push and this call is not an error, the removal simply wins.
func (db *Database) MarkSynced(malID int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var anime Anime
	if err := db.store.Get(malID, &anime); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil
		}
		return err
	}

	anime.Synced = true
	return db.store.Update(malID, &anime)
}

// Stats holds aggregate counts over the tracked list
type Stats struct {
	Total                int            `json:"total"`
	ByStatus             map[Status]int `json:"by_status"`
	AverageScore         float64        `json:"average_score"`
	TotalEpisodesWatched int            `json:"total_episodes_watched"`
}

// Stats computes aggregate counts over all tracked anime
func (db *Database) Stats() (*Stats, error) {
	var animes []*Anime
	if err := db.store.Find(&animes, nil); err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:    len(animes),
		ByStatus: make(map[Status]int),
	}

	scored := 0
	scoreSum := 0
	for _, anime := range animes {
		stats.ByStatus[anime.Status]++
		stats.TotalEpisodesWatched += anime.EpisodesWatched
		if anime.Score > 0 {
			scored++
			scoreSum += anime.Score
		}
	}

	if scored > 0 {
		stats.AverageScore = math.Round(float64(scoreSum)/float64(scored)*100) / 100
	}

	return stats, nil
}

// Activity log operations

// logActivity appends one event to the activity log. Failures are swallowed,
// the log is read-side reporting only and must never fail a mutation that
// already committed.
func (db *Database) logActivity(action Action, malID int, title, oldValue, newValue string) {
	event := &ActivityEvent{
		Action:    action,
		MALID:     malID,
		Title:     title,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: time.Now(),
	}
	_ = db.store.Insert(bolthold.NextSequence(), event)
}

// RecentActivity retrieves the last limit activity events, newest first
func (db *Database) RecentActivity(limit int) ([]*ActivityEvent, error) {
	var events []*ActivityEvent
	if err := db.store.Find(&events, nil); err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].ID > events[j].ID
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

// PruneActivity drops the oldest activity events, keeping the newest keep
// entries.
func (db *Database) PruneActivity(keep int) error {
	var events []*ActivityEvent
	if err := db.store.Find(&events, nil); err != nil {
		return err
	}

	if len(events) <= keep {
		return nil
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].ID > events[j].ID
	})

	for _, event := range events[keep:] {
		if err := db.store.Delete(event.ID, &ActivityEvent{}); err != nil {
			return err
		}
	}

	return nil
}

// Sync bookkeeping

// LastSyncAt returns the timestamp of the last completed sync run, or the
// zero time if no run has completed yet.
func (db *Database) LastSyncAt() (time.Time, error) {
	var state SyncState
	if err := db.store.Get(syncStateKey, &state); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return state.LastSyncAt, nil
}

// SetLastSyncAt persists the last sync run timestamp
func (db *Database) SetLastSyncAt(t time.Time) error {
	return db.store.Upsert(syncStateKey, &SyncState{Key: syncStateKey, LastSyncAt: t})
}
