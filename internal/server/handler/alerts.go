package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// AlertHandler serves alert endpoints backed by the alert store.
type AlertHandler struct {
	alerts domain.AlertStore
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(alerts domain.AlertStore, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

// listAlertsResponse wraps the list endpoint output.
type listAlertsResponse struct {
	Alerts []domain.LunarAlert `json:"alerts"`
	Limit  int                 `json:"limit"`
}

// ListAlerts returns the most recent alerts.
// GET /api/alerts?limit=50
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	alerts, err := h.alerts.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list alerts failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, listAlertsResponse{
		Alerts: alerts,
		Limit:  opts.Limit,
	})
}

// AcknowledgeAlert marks one alert as acknowledged.
// POST /api/alerts/{id}/ack
func (h *AlertHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing alert id")
		return
	}

	if err := h.alerts.Acknowledge(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: acknowledge alert failed",
			slog.String("alert_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}
