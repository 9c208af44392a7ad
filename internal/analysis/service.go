// Package analysis owns durability of analysis runs and the recovery path:
// it decides what "the latest complete analysis" means and reconstitutes it
// from the append-only stores after a restart.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Config holds the completeness policy. Both values are policy constants,
// not invariants, so they are configurable.
type Config struct {
	// CoherenceWindow is the span within which agent completion timestamps
	// must fall to belong to one run.
	CoherenceWindow time.Duration
	// RequiredAgents is how many distinct agent types a complete run needs.
	RequiredAgents int
	// RecentAlerts bounds how many alerts the recovery read returns.
	RecentAlerts int
}

// DefaultConfig returns the production defaults: 60s window, 3 agents.
func DefaultConfig() Config {
	return Config{
		CoherenceWindow: 60 * time.Second,
		RequiredAgents:  3,
		RecentAlerts:    50,
	}
}

// Service composes the append-only stores into analysis reads and writes.
type Service struct {
	cfg       Config
	agentLogs domain.AgentAnalysisStore
	alerts    domain.AlertStore
	rings     domain.RingStore
	snaps     domain.SnapshotStore
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(
	cfg Config,
	agentLogs domain.AgentAnalysisStore,
	alerts domain.AlertStore,
	rings domain.RingStore,
	snaps domain.SnapshotStore,
	logger *slog.Logger,
) *Service {
	if cfg.CoherenceWindow <= 0 {
		cfg.CoherenceWindow = DefaultConfig().CoherenceWindow
	}
	if cfg.RequiredAgents <= 0 {
		cfg.RequiredAgents = DefaultConfig().RequiredAgents
	}
	if cfg.RecentAlerts <= 0 {
		cfg.RecentAlerts = DefaultConfig().RecentAlerts
	}
	return &Service{
		cfg:       cfg,
		agentLogs: agentLogs,
		alerts:    alerts,
		rings:     rings,
		snaps:     snaps,
		logger:    logger.With(slog.String("component", "analysis_service")),
	}
}

// LoadLatest reconstitutes the most recent complete analysis. hasAnalysis is
// false when fewer than the required agent types completed inside the
// coherence window, or when the store is unreachable; the read path
// degrades to "no analysis available" rather than failing.
func (s *Service) LoadLatest(ctx context.Context) (domain.CombinedAnalysis, bool) {
	records, err := s.agentLogs.ListRecent(ctx, s.cfg.RequiredAgents*5)
	if err != nil {
		s.logger.Warn("agent log read failed, degrading to no analysis", slog.String("error", err.Error()))
		return domain.CombinedAnalysis{}, false
	}

	run, ok := s.latestCoherentRun(records)
	if !ok {
		return domain.CombinedAnalysis{}, false
	}

	combined := domain.CombinedAnalysis{
		ID:          uuid.NewString(),
		Agents:      run,
		GeneratedAt: latestCompletion(run),
	}

	alerts, err := s.alerts.ListRecent(ctx, s.cfg.RecentAlerts)
	if err != nil {
		s.logger.Warn("alert read failed during recovery", slog.String("error", err.Error()))
	} else {
		combined.Alerts = alerts
	}

	rings, err := s.rings.ListOpen(ctx)
	if err != nil {
		s.logger.Warn("ring read failed during recovery", slog.String("error", err.Error()))
	} else {
		combined.Rings = rings
	}

	snap, err := s.snaps.Latest(ctx)
	if err != nil {
		s.logger.Warn("snapshot read failed during recovery", slog.String("error", err.Error()))
	} else {
		combined.OverallRiskScore = snap.AvgRiskScore
	}

	combined.Summary = fmt.Sprintf(
		"recovered analysis: %d agents, %d alerts, %d open rings, risk %.2f",
		len(combined.Agents), len(combined.Alerts), len(combined.Rings), combined.OverallRiskScore,
	)
	return combined, true
}

// latestCoherentRun picks, per agent type, the newest completed record, then
// checks that the required number of types completed within one coherence
// window. Incomplete or incoherent runs are discarded whole, with no
// partial recovery.
func (s *Service) latestCoherentRun(records []domain.AgentAnalysis) ([]domain.AgentAnalysis, bool) {
	latestByType := make(map[domain.AgentType]domain.AgentAnalysis)
	for _, rec := range records {
		if rec.Status != domain.AgentCompleted || rec.CompletedAt == nil {
			continue
		}
		prev, ok := latestByType[rec.AgentType]
		if !ok || rec.CompletedAt.After(*prev.CompletedAt) {
			latestByType[rec.AgentType] = rec
		}
	}
	if len(latestByType) < s.cfg.RequiredAgents {
		return nil, false
	}

	var run []domain.AgentAnalysis
	var newest time.Time
	for _, rec := range latestByType {
		run = append(run, rec)
		if rec.CompletedAt.After(newest) {
			newest = *rec.CompletedAt
		}
	}

	cutoff := newest.Add(-s.cfg.CoherenceWindow)
	coherent := run[:0]
	for _, rec := range run {
		if !rec.CompletedAt.Before(cutoff) {
			coherent = append(coherent, rec)
		}
	}
	if len(coherent) < s.cfg.RequiredAgents {
		return nil, false
	}
	return coherent, true
}

func latestCompletion(run []domain.AgentAnalysis) time.Time {
	var newest time.Time
	for _, rec := range run {
		if rec.CompletedAt != nil && rec.CompletedAt.After(newest) {
			newest = *rec.CompletedAt
		}
	}
	return newest
}

// SaveRun persists the outputs of one analysis run: alerts and the snapshot
// appended, rings created or updated in place. Writes are append-only and
// independent; a failure surfaces to the caller as a failed run but cannot
// corrupt previously persisted state.
func (s *Service) SaveRun(ctx context.Context, combined domain.CombinedAnalysis, snap domain.GraphSnapshot) error {
	for _, alert := range combined.Alerts {
		if err := s.alerts.Append(ctx, alert); err != nil {
			return fmt.Errorf("analysis: append alert %s: %w", alert.ID, domain.ErrPersistence)
		}
	}

	for _, ring := range combined.Rings {
		existing, err := s.rings.GetByID(ctx, ring.ID)
		switch {
		case err == nil && existing.ID != "":
			if err := s.rings.Update(ctx, ring); err != nil {
				return fmt.Errorf("analysis: update ring %s: %w", ring.ID, domain.ErrPersistence)
			}
		default:
			if err := s.rings.Create(ctx, ring); err != nil {
				return fmt.Errorf("analysis: create ring %s: %w", ring.ID, domain.ErrPersistence)
			}
		}
	}

	if err := s.snaps.Append(ctx, snap); err != nil {
		return fmt.Errorf("analysis: append snapshot: %w", domain.ErrPersistence)
	}
	return nil
}
