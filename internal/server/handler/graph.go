package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// GraphHandler serves graph snapshot and correlation lookup endpoints.
type GraphHandler struct {
	snapshots    domain.SnapshotStore
	correlations domain.CorrelationCache
	logger       *slog.Logger
}

// NewGraphHandler creates a GraphHandler. correlations may be nil when no
// cache is configured; the pair endpoint then returns 404 for every pair.
func NewGraphHandler(snapshots domain.SnapshotStore, correlations domain.CorrelationCache, logger *slog.Logger) *GraphHandler {
	return &GraphHandler{
		snapshots:    snapshots,
		correlations: correlations,
		logger:       logger,
	}
}

// GetGraph returns the latest graph snapshot.
// GET /api/graph
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Latest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"hasSnapshot": false})
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get graph snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load graph snapshot")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hasSnapshot": true,
		"snapshot":    snap,
	})
}

// GetCorrelation returns the cached correlation result for an account pair,
// in either order.
// GET /api/correlations/{a}/{b}
func (h *GraphHandler) GetCorrelation(w http.ResponseWriter, r *http.Request) {
	a := pathParam(r, "a")
	b := pathParam(r, "b")
	if a == "" || b == "" {
		writeError(w, http.StatusBadRequest, "missing account ids")
		return
	}
	if a == b {
		writeError(w, http.StatusBadRequest, "accounts must differ")
		return
	}

	if h.correlations == nil {
		writeError(w, http.StatusNotFound, "correlation not found")
		return
	}

	result, err := h.correlations.GetResult(r.Context(), a, b)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "correlation not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get correlation failed",
			slog.String("account_a", a),
			slog.String("account_b", b),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load correlation")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
