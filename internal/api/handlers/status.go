package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/amaumene/malarr/internal/controllers"
	"github.com/amaumene/malarr/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusHandler reports sync state and list statistics. Everything here is
// served from the local store, it never touches the network.
type StatusHandler struct {
	db       *models.Database
	syncCtrl *controllers.SyncController
	logger   *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, syncCtrl *controllers.SyncController, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:       db,
		syncCtrl: syncCtrl,
		logger:   logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	Authenticated bool          `json:"authenticated"`
	Pending       int           `json:"pending"`
	LastSyncAt    *time.Time    `json:"last_sync_at,omitempty"`
	Stats         *models.Stats `json:"stats"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	syncStatus, err := h.syncCtrl.Status()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get sync status")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	stats, err := h.db.Stats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get stats")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		Authenticated: syncStatus.Authenticated,
		Pending:       syncStatus.Pending,
		Stats:         stats,
	}
	if !syncStatus.LastSyncAt.IsZero() {
		response.LastSyncAt = &syncStatus.LastSyncAt
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
