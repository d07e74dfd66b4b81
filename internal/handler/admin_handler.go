package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/service"
)

// AdminHandler exposes reclamation maintenance.
type AdminHandler struct {
	reclaim *service.ReclaimService
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reclaim *service.ReclaimService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		reclaim: reclaim,
		logger:  logger.With().Str("handler", "admin").Logger(),
	}
}

// ReclaimResponse reports the outcome of a single-blob reclaim.
type ReclaimResponse struct {
	BlobID  string `json:"blobId"`
	Deleted bool   `json:"deleted"`
}

// Sweep handles POST /api/admin/sweep?older_than_minutes=N&dry_run=true.
// Without older_than_minutes every unreferenced blob is reclaimed.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var opts service.SweepOptions

	q := r.URL.Query()
	if v := q.Get("older_than_minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes < 0 {
			writeError(w, http.StatusBadRequest, "older_than_minutes must be a non-negative integer")
			return
		}
		opts.OlderThan = time.Duration(minutes) * time.Minute
	}
	if v := q.Get("dry_run"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dry_run must be a boolean")
			return
		}
		opts.DryRun = dryRun
	}

	result, err := h.reclaim.Sweep(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reclaim.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Reclaim handles POST /api/admin/reclaim/{id}.
func (h *AdminHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBlobID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.reclaim.ReclaimIfOrphaned(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ReclaimResponse{BlobID: id.String(), Deleted: deleted})
}
