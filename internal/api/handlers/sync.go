package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amaumene/malarr/internal/controllers"
	"github.com/sirupsen/logrus"
)

// SyncHandler triggers a sync run on demand
type SyncHandler struct {
	syncCtrl *controllers.SyncController
	logger   *logrus.Logger
}

// NewSyncHandler creates a new sync trigger handler
func NewSyncHandler(syncCtrl *controllers.SyncController, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		syncCtrl: syncCtrl,
		logger:   logger,
	}
}

// SyncResponse wraps the run result for the API
type SyncResponse struct {
	Partial bool                    `json:"partial"`
	Result  *controllers.SyncResult `json:"result"`
}

// ServeHTTP handles the sync trigger endpoint. The run is synchronous; a
// request arriving while another run is in flight gets a 409.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.syncCtrl.RunSync(r.Context())
	switch {
	case errors.Is(err, controllers.ErrSyncInProgress):
		http.Error(w, "Sync already running", http.StatusConflict)
		return
	case errors.Is(err, controllers.ErrPartialSync):
		// pull succeeded, some pushes are still pending; report what we did
	case err != nil:
		h.logger.WithError(err).Error("Sync run failed")
		http.Error(w, "Sync failed, nothing changed", http.StatusBadGateway)
		return
	}

	response := SyncResponse{
		Partial: errors.Is(err, controllers.ErrPartialSync),
		Result:  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
