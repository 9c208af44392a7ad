package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// RingHandler serves fraud-ring endpoints backed by the ring store.
type RingHandler struct {
	rings  domain.RingStore
	logger *slog.Logger
}

// NewRingHandler creates a RingHandler.
func NewRingHandler(rings domain.RingStore, logger *slog.Logger) *RingHandler {
	return &RingHandler{rings: rings, logger: logger}
}

// listRingsResponse wraps the list endpoint output.
type listRingsResponse struct {
	Rings  []domain.FraudRing `json:"rings"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// ListRings returns rings, most recently updated first. Pass status=open to
// restrict to open rings.
// GET /api/rings?status=open&limit=50
func (h *RingHandler) ListRings(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		rings []domain.FraudRing
		err   error
	)
	if r.URL.Query().Get("status") == string(domain.RingOpen) {
		rings, err = h.rings.ListOpen(r.Context())
	} else {
		rings, err = h.rings.List(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rings")
		return
	}

	writeJSON(w, http.StatusOK, listRingsResponse{
		Rings:  rings,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetRing returns one ring by id.
// GET /api/rings/{id}
func (h *RingHandler) GetRing(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing ring id")
		return
	}

	ring, err := h.rings.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ring not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get ring failed",
			slog.String("ring_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get ring")
		return
	}

	writeJSON(w, http.StatusOK, ring)
}

// updateRingRequest carries the review-workflow status change.
type updateRingRequest struct {
	Status domain.RingStatus `json:"status"`
}

// UpdateRing moves a ring through its review lifecycle. Only the status is
// mutable from the API; detector-owned fields are read-only here.
// PATCH /api/rings/{id}
func (h *RingHandler) UpdateRing(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing ring id")
		return
	}

	var req updateRingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Status {
	case domain.RingOpen, domain.RingReviewing, domain.RingClosed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := h.rings.UpdateStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ring not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update ring failed",
			slog.String("ring_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update ring")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id, "status": req.Status})
}
