package models

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func intPtr(v int) *int          { return &v }
func statusPtr(s Status) *Status { return &s }

func TestUpsertKeepsSingleRow(t *testing.T) {
	db := newTestDB(t)

	anime := &Anime{MALID: 100, Title: "Trigun"}
	if err := db.UpsertAnime(anime, StatusPlanToWatch); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.UpsertAnime(&Anime{MALID: 100, Title: "Trigun"}, StatusWatching); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if err := db.UpdateAnimeStatus(100, statusPtr(StatusCompleted), intPtr(26), intPtr(9)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	animes, err := db.ListAnime("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(animes) != 1 {
		t.Fatalf("Expected exactly one row, got %d", len(animes))
	}
	if animes[0].Status != StatusCompleted || animes[0].EpisodesWatched != 26 {
		t.Errorf("Unexpected row state: %+v", animes[0])
	}
}

func TestUpsertPreservesAddedAt(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertAnime(&Anime{MALID: 1, Title: "Akira"}, StatusPlanToWatch); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	first, err := db.GetAnime(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := db.UpsertAnime(&Anime{MALID: 1, Title: "Akira"}, StatusWatching); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	second, err := db.GetAnime(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !second.AddedAt.Equal(first.AddedAt) {
		t.Error("Upsert must not reset AddedAt")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Error("Upsert must bump UpdatedAt")
	}
}

func TestUpdateValidation(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertAnime(&Anime{MALID: 2, Title: "Berserk"}, StatusWatching); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.UpdateAnimeStatus(2, nil, nil, intPtr(7)); err != nil {
		t.Fatalf("Valid update failed: %v", err)
	}

	cases := []struct {
		name     string
		status   *Status
		episodes *int
		score    *int
	}{
		{"score too high", nil, nil, intPtr(11)},
		{"score negative", nil, nil, intPtr(-1)},
		{"episodes negative", nil, intPtr(-3), nil},
		{"unknown status", statusPtr("bingeing"), nil, nil},
	}

	for _, tc := range cases {
		err := db.UpdateAnimeStatus(2, tc.status, tc.episodes, tc.score)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}

	// The rejected updates must not have partially applied anything
	anime, err := db.GetAnime(2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if anime.Score != 7 || anime.EpisodesWatched != 0 || anime.Status != StatusWatching {
		t.Errorf("Rejected update leaked into the row: %+v", anime)
	}
}

func TestUpdateMissingRow(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateAnimeStatus(999, statusPtr(StatusWatching), nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateClearsSyncedAndLogsActivity(t *testing.T) {
	db := newTestDB(t)

	anime := &Anime{MALID: 3, Title: "Planetes", Synced: true}
	if err := db.UpsertAnime(anime, StatusWatching); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.MarkSynced(3); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	if err := db.UpdateAnimeStatus(3, statusPtr(StatusCompleted), intPtr(26), intPtr(8)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	updated, err := db.GetAnime(3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.Synced {
		t.Error("Update must clear the synced flag")
	}

	events, err := db.RecentActivity(10)
	if err != nil {
		t.Fatalf("RecentActivity failed: %v", err)
	}

	byAction := make(map[Action]*ActivityEvent)
	for _, ev := range events {
		byAction[ev.Action] = ev
	}
	if byAction[ActionAdd] == nil {
		t.Error("Expected an add event")
	}
	statusEv := byAction[ActionUpdateStatus]
	if statusEv == nil || statusEv.OldValue != string(StatusWatching) || statusEv.NewValue != string(StatusCompleted) {
		t.Errorf("Bad status event: %+v", statusEv)
	}
	episodesEv := byAction[ActionUpdateEpisodes]
	if episodesEv == nil || episodesEv.OldValue != "0" || episodesEv.NewValue != "26" {
		t.Errorf("Bad episodes event: %+v", episodesEv)
	}
	if byAction[ActionUpdateScore] == nil {
		t.Error("Expected a score event")
	}
}

func TestMarkSyncedTouchesOnlyFlag(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertAnime(&Anime{MALID: 4, Title: "Hyouka"}, StatusWatching); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	before, _ := db.GetAnime(4)

	if err := db.MarkSynced(4); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	after, _ := db.GetAnime(4)
	if !after.Synced {
		t.Error("Expected synced flag set")
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Status != before.Status {
		t.Error("MarkSynced must not touch any other field")
	}
}

func TestMarkSyncedMissingRowIsNoop(t *testing.T) {
	db := newTestDB(t)

	if err := db.MarkSynced(12345); err != nil {
		t.Errorf("MarkSynced on a removed row must be a no-op, got %v", err)
	}
}

func TestListUnsyncedFiltersStatuses(t *testing.T) {
	db := newTestDB(t)

	seed := []struct {
		id     int
		status Status
	}{
		{1, StatusWatching},
		{2, StatusCompleted},
		{3, StatusFavorite},
		{4, StatusRewatching},
		{5, StatusPriorityHigh},
		{6, StatusPriorityLow},
	}
	for _, s := range seed {
		if err := db.UpsertAnime(&Anime{MALID: s.id, Title: "x"}, s.status); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	remote := []Status{StatusWatching, StatusCompleted, StatusOnHold, StatusDropped, StatusPlanToWatch}
	unsynced, err := db.ListUnsynced(remote)
	if err != nil {
		t.Fatalf("ListUnsynced failed: %v", err)
	}

	if len(unsynced) != 2 {
		t.Fatalf("Expected 2 uploadable rows, got %d", len(unsynced))
	}
	for _, anime := range unsynced {
		switch anime.Status {
		case StatusRewatching, StatusFavorite, StatusPriorityHigh, StatusPriorityLow:
			t.Errorf("Local-only row %d leaked into the upload set", anime.MALID)
		}
	}
}

func TestRemoveAnime(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertAnime(&Anime{MALID: 8, Title: "Barakamon"}, StatusCompleted); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.RemoveAnime(8); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := db.GetAnime(8); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after remove, got %v", err)
	}
	if err := db.RemoveAnime(8); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second remove must fail with ErrNotFound, got %v", err)
	}

	events, _ := db.RecentActivity(5)
	if len(events) == 0 || events[0].Action != ActionRemove || events[0].Title != "Barakamon" {
		t.Errorf("Expected a remove event with the title snapshot, got %+v", events)
	}
}

func TestListAnimeOrdering(t *testing.T) {
	db := newTestDB(t)

	for _, id := range []int{1, 2, 3} {
		if err := db.UpsertAnime(&Anime{MALID: id, Title: "x"}, StatusWatching); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := db.UpdateAnimeStatus(1, nil, intPtr(4), nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	animes, err := db.ListAnime(StatusWatching)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(animes) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(animes))
	}
	if animes[0].MALID != 1 {
		t.Errorf("Most recently touched row must come first, got %d", animes[0].MALID)
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertAnime(&Anime{MALID: 1, Title: "a"}, StatusWatching); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertAnime(&Anime{MALID: 2, Title: "b"}, StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateAnimeStatus(1, nil, intPtr(5), intPtr(8)); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateAnimeStatus(2, nil, intPtr(12), intPtr(9)); err != nil {
		t.Fatal(err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Expected total 2, got %d", stats.Total)
	}
	if stats.ByStatus[StatusWatching] != 1 || stats.ByStatus[StatusCompleted] != 1 {
		t.Errorf("Bad per-status counts: %+v", stats.ByStatus)
	}
	if stats.AverageScore != 8.5 {
		t.Errorf("Expected average score 8.5, got %v", stats.AverageScore)
	}
	if stats.TotalEpisodesWatched != 17 {
		t.Errorf("Expected 17 episodes watched, got %d", stats.TotalEpisodesWatched)
	}
}

func TestRecentActivityAndPrune(t *testing.T) {
	db := newTestDB(t)

	for i := 1; i <= 5; i++ {
		if err := db.UpsertAnime(&Anime{MALID: i, Title: "x"}, StatusPlanToWatch); err != nil {
			t.Fatal(err)
		}
	}

	events, err := db.RecentActivity(3)
	if err != nil {
		t.Fatalf("RecentActivity failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].ID < events[1].ID || events[1].ID < events[2].ID {
		t.Error("Events must be newest first")
	}

	if err := db.PruneActivity(2); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	remaining, _ := db.RecentActivity(0)
	if len(remaining) != 2 {
		t.Errorf("Expected 2 events after prune, got %d", len(remaining))
	}
	if remaining[0].MALID != 5 || remaining[1].MALID != 4 {
		t.Errorf("Prune must drop the oldest entries, got %+v", remaining)
	}
}

func TestLastSyncAtRoundTrip(t *testing.T) {
	db := newTestDB(t)

	initial, err := db.LastSyncAt()
	if err != nil {
		t.Fatalf("LastSyncAt failed: %v", err)
	}
	if !initial.IsZero() {
		t.Errorf("Expected zero time before any sync, got %v", initial)
	}

	now := time.Now().Truncate(time.Second)
	if err := db.SetLastSyncAt(now); err != nil {
		t.Fatalf("SetLastSyncAt failed: %v", err)
	}

	got, err := db.LastSyncAt()
	if err != nil {
		t.Fatalf("LastSyncAt failed: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("Expected %v, got %v", now, got)
	}
}

func TestApplyMergeSeesCommittedEdit(t *testing.T) {
	db := newTestDB(t)

	seed := &Anime{MALID: 5, Title: "Steins;Gate", EpisodesWatched: 3, Score: 8, Synced: true}
	if err := db.UpsertAnime(seed, StatusWatching); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// A user edit committed after a sync run pulled its snapshot must still
	// be what the merge sees.
	if err := db.UpdateAnimeStatus(5, statusPtr(StatusFavorite), nil, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	var seen Status
	changed, err := db.ApplyMerge(5, func(local *Anime) (*Anime, bool) {
		if local == nil {
			t.Fatal("Expected the existing row")
		}
		seen = local.Status
		row := *local
		return &row, false
	})
	if err != nil {
		t.Fatalf("ApplyMerge failed: %v", err)
	}
	if seen != StatusFavorite {
		t.Errorf("Merge must observe the committed edit, saw %q", seen)
	}
	if changed {
		t.Error("Unchanged merge must not report a write")
	}

	anime, err := db.GetAnime(5)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if anime.Status != StatusFavorite || anime.Synced {
		t.Errorf("Edited row must be untouched: %+v", anime)
	}
}

func TestApplyMergeUnchangedWritesNothing(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertAnime(&Anime{MALID: 1, Title: "Akira"}, StatusWatching); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	before, err := db.GetAnime(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	changed, err := db.ApplyMerge(1, func(local *Anime) (*Anime, bool) {
		row := *local
		row.Status = StatusCompleted // returned but flagged unchanged
		return &row, false
	})
	if err != nil || changed {
		t.Fatalf("Expected a no-op, got changed=%v err=%v", changed, err)
	}

	after, err := db.GetAnime(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("No-op merge must not write: before %+v, after %+v", before, after)
	}
}

func TestApplyMergeCreatesRowAndLogsAdd(t *testing.T) {
	db := newTestDB(t)

	changed, err := db.ApplyMerge(42, func(local *Anime) (*Anime, bool) {
		if local != nil {
			t.Fatalf("Expected no existing row, got %+v", local)
		}
		now := time.Now()
		return &Anime{
			MALID:     42,
			Title:     "Cowboy Bebop",
			Status:    StatusCompleted,
			AddedAt:   now,
			UpdatedAt: now,
			Synced:    true,
		}, true
	})
	if err != nil {
		t.Fatalf("ApplyMerge failed: %v", err)
	}
	if !changed {
		t.Error("New row must report a change")
	}

	anime, err := db.GetAnime(42)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !anime.Synced || anime.Status != StatusCompleted {
		t.Errorf("Unexpected row state: %+v", anime)
	}

	events, err := db.RecentActivity(10)
	if err != nil {
		t.Fatalf("RecentActivity failed: %v", err)
	}
	if len(events) != 1 || events[0].Action != ActionAdd || events[0].MALID != 42 {
		t.Errorf("Expected one add event, got %+v", events)
	}
}
