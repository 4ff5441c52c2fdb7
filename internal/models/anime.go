package models

import "time"

// Anime is one tracked title, keyed by its MAL id
type Anime struct {
	MALID int `boltholdKey:"MALID"`
	Title string

	Status          Status `boltholdIndex:"Status"`
	EpisodesWatched int
	TotalEpisodes   int // 0 = unknown length
	Score           int // 0-10, 0 = unrated

	// Catalog metadata, filled at add time. Never required for correctness.
	ImageURL   string
	Synopsis   string
	Genres     []string
	Studios    []string
	Year       int
	Rank       int
	Popularity int

	AddedAt   time.Time
	UpdatedAt time.Time

	// Synced is true only while status/episodes/score match the last
	// successful round-trip with MAL. Any local mutation clears it.
	Synced bool `boltholdIndex:"Synced"`
}

// ActivityEvent is one entry in the append-only activity log
type ActivityEvent struct {
	ID        uint64 `boltholdKey:"ID"`
	Action    Action
	MALID     int
	Title     string
	OldValue  string
	NewValue  string
	Timestamp time.Time
}

// SyncState persists sync engine bookkeeping across restarts
type SyncState struct {
	Key        string `boltholdKey:"Key"`
	LastSyncAt time.Time
}
