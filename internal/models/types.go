package models

// Status represents the watch status of a tracked anime
type Status string

// Statuses the MAL API understands and accepts on upload
const (
	StatusWatching    Status = "watching"
	StatusCompleted   Status = "completed"
	StatusOnHold      Status = "on_hold"
	StatusDropped     Status = "dropped"
	StatusPlanToWatch Status = "plan_to_watch"
)

// Local-only extension statuses, never sent to or accepted from MAL
const (
	StatusRewatching   Status = "rewatching"
	StatusFavorite     Status = "favorite"
	StatusPriorityHigh Status = "priority_high"
	StatusPriorityLow  Status = "priority_low"
)

// ValidStatus reports whether s is one of the known statuses (remote or local)
func ValidStatus(s Status) bool {
	switch s {
	case StatusWatching, StatusCompleted, StatusOnHold, StatusDropped, StatusPlanToWatch,
		StatusRewatching, StatusFavorite, StatusPriorityHigh, StatusPriorityLow:
		return true
	}
	return false
}

// Action represents the kind of change recorded in the activity log
type Action string

const (
	ActionAdd            Action = "add"
	ActionUpdateStatus   Action = "update_status"
	ActionUpdateEpisodes Action = "update_episodes"
	ActionUpdateScore    Action = "update_score"
	ActionRemove         Action = "remove"
)
