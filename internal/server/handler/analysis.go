package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// AnalysisService defines what the analysis handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type AnalysisService interface {
	LoadLatest(ctx context.Context) (domain.CombinedAnalysis, bool)
}

// AnalysisTrigger starts an on-demand analysis run.
type AnalysisTrigger interface {
	TriggerAnalysis(ctx context.Context) error
}

// AnalysisHandler serves the combined-analysis endpoints.
type AnalysisHandler struct {
	analysis AnalysisService
	trigger  AnalysisTrigger
	logger   *slog.Logger
}

// NewAnalysisHandler creates an AnalysisHandler. trigger may be nil when the
// pipeline is disabled; the run endpoint then returns 503.
func NewAnalysisHandler(analysis AnalysisService, trigger AnalysisTrigger, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		trigger:  trigger,
		logger:   logger,
	}
}

// loadAnalysisResponse is the envelope for the load endpoint. HasAnalysis is
// false when no complete run exists; the UI treats that as "no analysis
// available", never as an error.
type loadAnalysisResponse struct {
	Success     bool                     `json:"success"`
	HasAnalysis bool                     `json:"hasAnalysis"`
	Analysis    *domain.CombinedAnalysis `json:"analysis,omitempty"`
	FraudRings  []domain.FraudRing       `json:"fraudRings,omitempty"`
}

// LoadAnalysis returns the most recent complete analysis, if one exists.
// GET /api/load-analysis
func (h *AnalysisHandler) LoadAnalysis(w http.ResponseWriter, r *http.Request) {
	combined, ok := h.analysis.LoadLatest(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, loadAnalysisResponse{
			Success:     true,
			HasAnalysis: false,
		})
		return
	}

	writeJSON(w, http.StatusOK, loadAnalysisResponse{
		Success:     true,
		HasAnalysis: true,
		Analysis:    &combined,
		FraudRings:  combined.Rings,
	})
}

// RunAnalysis triggers an immediate analysis run.
// POST /api/analysis/run
func (h *AnalysisHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis pipeline not running")
		return
	}

	if err := h.trigger.TriggerAnalysis(r.Context()); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			writeError(w, http.StatusConflict, "analysis already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: trigger analysis failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to trigger analysis")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}
