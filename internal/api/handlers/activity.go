package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/amaumene/malarr/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultActivityLimit = 50

// ActivityHandler serves the recent activity log
type ActivityHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(db *models.Database, logger *logrus.Logger) *ActivityHandler {
	return &ActivityHandler{
		db:     db,
		logger: logger,
	}
}

// ServeHTTP handles the activity endpoint
func (h *ActivityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.db.RecentActivity(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get activity log")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if events == nil {
		events = []*models.ActivityEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
