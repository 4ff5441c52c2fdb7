package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/amaumene/malarr/internal/models"
	"github.com/amaumene/malarr/internal/services/mal"
	"github.com/sirupsen/logrus"
)

// Catalog is the slice of the MAL client used to fill in metadata when a
// title is added by id only.
type Catalog interface {
	GetAnimeDetails(ctx context.Context, malID int) (*mal.AnimeDetails, error)
}

// AnimeHandler handles list and add requests on /api/anime
type AnimeHandler struct {
	db      *models.Database
	catalog Catalog
	logger  *logrus.Logger
}

// NewAnimeHandler creates a new anime collection handler
func NewAnimeHandler(db *models.Database, catalog Catalog, logger *logrus.Logger) *AnimeHandler {
	return &AnimeHandler{
		db:      db,
		catalog: catalog,
		logger:  logger,
	}
}

// ServeHTTP handles the anime collection endpoint
func (h *AnimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.add(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AnimeHandler) list(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	if status != "" && !models.ValidStatus(status) {
		http.Error(w, "Unknown status", http.StatusBadRequest)
		return
	}

	animes, err := h.db.ListAnime(status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list anime")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if animes == nil {
		animes = []*models.Anime{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(animes)
}

// AddAnimeRequest is the body of POST /api/anime
type AddAnimeRequest struct {
	MALID  int           `json:"mal_id"`
	Title  string        `json:"title"`
	Status models.Status `json:"status"`
}

func (h *AnimeHandler) add(w http.ResponseWriter, r *http.Request) {
	var req AddAnimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.MALID <= 0 {
		http.Error(w, "mal_id is required", http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		req.Status = models.StatusPlanToWatch
	}
	if !models.ValidStatus(req.Status) {
		http.Error(w, "Unknown status", http.StatusBadRequest)
		return
	}

	anime := &models.Anime{
		MALID: req.MALID,
		Title: req.Title,
	}

	// Fill catalog metadata when we can; the add still works without it
	if h.catalog != nil {
		if details, err := h.catalog.GetAnimeDetails(r.Context(), req.MALID); err != nil {
			h.logger.WithError(err).WithField("mal_id", req.MALID).Warn("Metadata fetch failed, adding without it")
		} else {
			if anime.Title == "" {
				anime.Title = details.Title
			}
			anime.TotalEpisodes = details.TotalEpisodes
			anime.ImageURL = details.ImageURL
			anime.Synopsis = details.Synopsis
			anime.Genres = details.Genres
			anime.Studios = details.Studios
			anime.Year = details.Year
			anime.Rank = details.Rank
			anime.Popularity = details.Popularity
		}
	}

	if anime.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	if err := h.db.UpsertAnime(anime, req.Status); err != nil {
		if errors.Is(err, models.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.WithError(err).Error("Failed to add anime")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(anime)
}

// AnimeItemHandler handles update and remove requests on /api/anime/{id}
type AnimeItemHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewAnimeItemHandler creates a new single-anime handler
func NewAnimeItemHandler(db *models.Database, logger *logrus.Logger) *AnimeItemHandler {
	return &AnimeItemHandler{
		db:     db,
		logger: logger,
	}
}

// UpdateAnimeRequest is the body of PATCH /api/anime/{id}; absent fields are
// left unchanged.
type UpdateAnimeRequest struct {
	Status          *models.Status `json:"status"`
	EpisodesWatched *int           `json:"episodes_watched"`
	Score           *int           `json:"score"`
}

// ServeHTTP handles the single-anime endpoint
func (h *AnimeItemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idPart := strings.TrimPrefix(r.URL.Path, "/api/anime/")
	malID, err := strconv.Atoi(idPart)
	if err != nil || malID <= 0 {
		http.Error(w, "Invalid anime id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, malID)
	case http.MethodPatch:
		h.update(w, r, malID)
	case http.MethodDelete:
		h.remove(w, malID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AnimeItemHandler) get(w http.ResponseWriter, malID int) {
	anime, err := h.db.GetAnime(malID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).Error("Failed to get anime")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(anime)
}

func (h *AnimeItemHandler) update(w http.ResponseWriter, r *http.Request, malID int) {
	var req UpdateAnimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.Status == nil && req.EpisodesWatched == nil && req.Score == nil {
		http.Error(w, "Nothing to update", http.StatusBadRequest)
		return
	}

	err := h.db.UpdateAnimeStatus(malID, req.Status, req.EpisodesWatched, req.Score)
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
		return
	case errors.Is(err, models.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to update anime")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	anime, err := h.db.GetAnime(malID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to reload anime")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(anime)
}

func (h *AnimeItemHandler) remove(w http.ResponseWriter, malID int) {
	err := h.db.RemoveAnime(malID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to remove anime")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
