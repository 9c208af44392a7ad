package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Narrator is the optional external AI-narrative collaborator. It may
// produce a free-text explanation for an alert; its absence or failure never
// blocks alert generation.
type Narrator interface {
	ExplainAlert(ctx context.Context, alert domain.LunarAlert) (string, error)
	ExplainRing(ctx context.Context, ring domain.FraudRing) (string, error)
}

// CombinerConfig tunes alert emission and the risk model.
type CombinerConfig struct {
	// SeverityFloor is the minimum finding severity that becomes an alert.
	SeverityFloor domain.FindingSeverity
	// DensityWeight and RingWeight combine fraud-edge density and mean ring
	// severity into the overall risk score; they should sum to 1.
	DensityWeight float64
	RingWeight    float64
}

// DefaultCombinerConfig returns the production defaults.
func DefaultCombinerConfig() CombinerConfig {
	return CombinerConfig{
		SeverityFloor: domain.SeverityWarning,
		DensityWeight: 0.6,
		RingWeight:    0.4,
	}
}

// Combiner merges the terminal agent records of one run into a
// CombinedAnalysis: alerts from completed agents' findings, one alert per
// ring, and the overall risk score.
type Combiner struct {
	cfg      CombinerConfig
	narrator Narrator // optional
	logger   *slog.Logger
}

// NewCombiner creates a Combiner. narrator may be nil.
func NewCombiner(cfg CombinerConfig, narrator Narrator, logger *slog.Logger) *Combiner {
	if cfg.DensityWeight <= 0 && cfg.RingWeight <= 0 {
		cfg = DefaultCombinerConfig()
	}
	return &Combiner{cfg: cfg, narrator: narrator, logger: logger.With(slog.String("component", "combiner"))}
}

// Combine only reads agents with status completed; failed records contribute
// nothing but do not abort the merge; a partial analysis beats none.
func (c *Combiner) Combine(ctx context.Context, g *domain.KnowledgeGraph, rings []domain.FraudRing, agents []domain.AgentAnalysis) domain.CombinedAnalysis {
	now := time.Now().UTC()
	combined := domain.CombinedAnalysis{
		ID:          uuid.NewString(),
		Agents:      agents,
		Rings:       rings,
		GeneratedAt: now,
	}

	completed := 0
	for _, rec := range agents {
		if rec.Status != domain.AgentCompleted {
			continue
		}
		completed++
		for _, f := range rec.Findings {
			if f.Severity.Rank() < c.cfg.SeverityFloor.Rank() {
				continue
			}
			combined.Alerts = append(combined.Alerts, c.alertFromFinding(ctx, f, now))
		}
	}

	for _, ring := range rings {
		combined.Alerts = append(combined.Alerts, c.alertFromRing(ctx, ring, now))
	}

	combined.OverallRiskScore = RiskScore(c.cfg, g.FraudEdgeDensity(), rings)
	combined.Summary = fmt.Sprintf(
		"%d/%d agents completed, %d alerts, %d fraud rings, risk %.2f",
		completed, len(agents), len(combined.Alerts), len(rings), combined.OverallRiskScore,
	)
	return combined
}

// RiskScore is a bounded function of fraud-edge density and mean ring
// severity, monotonically non-decreasing in density for fixed severities.
func RiskScore(cfg CombinerConfig, fraudEdgeDensity float64, rings []domain.FraudRing) float64 {
	meanSeverity := 0.0
	if len(rings) > 0 {
		sum := 0.0
		for _, r := range rings {
			sum += float64(r.Severity)
		}
		meanSeverity = sum / float64(len(rings)) / 5.0
	}
	score := cfg.DensityWeight*fraudEdgeDensity + cfg.RingWeight*meanSeverity
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (c *Combiner) alertFromFinding(ctx context.Context, f domain.Finding, now time.Time) domain.LunarAlert {
	alert := domain.LunarAlert{
		ID:          uuid.NewString(),
		Type:        alertTypeFor(f.AgentType),
		Severity:    f.Severity,
		Title:       f.Title,
		Description: f.Description,
		EntityIDs:   f.EntityIDs,
		RingID:      f.RingID,
		CreatedAt:   now,
	}
	c.narrate(ctx, &alert)
	return alert
}

func (c *Combiner) alertFromRing(ctx context.Context, ring domain.FraudRing, now time.Time) domain.LunarAlert {
	sev := domain.SeverityWarning
	if ring.Severity >= 4 {
		sev = domain.SeverityCritical
	}
	alert := domain.LunarAlert{
		ID:          uuid.NewString(),
		Type:        domain.AlertRing,
		Severity:    sev,
		Title:       fmt.Sprintf("fraud ring %s", ring.Name),
		Description: fmt.Sprintf("%d accounts, severity %d/5, confidence %.2f, exposure %.2f", len(ring.AccountIDs), ring.Severity, ring.Confidence, ring.Exposure),
		EntityIDs:   ring.AccountIDs,
		RingID:      ring.ID,
		CreatedAt:   now,
	}
	c.narrate(ctx, &alert)
	return alert
}

// narrate fills the optional AI explanation. Any failure leaves the field
// empty.
func (c *Combiner) narrate(ctx context.Context, alert *domain.LunarAlert) {
	if c.narrator == nil {
		return
	}
	explanation, err := c.narrator.ExplainAlert(ctx, *alert)
	if err != nil {
		c.logger.Warn("alert narration failed",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	alert.AIExplanation = explanation
}

func alertTypeFor(agentType domain.AgentType) domain.AlertType {
	switch agentType {
	case domain.AgentStructural:
		return domain.AlertPattern
	case domain.AgentTemporal:
		return domain.AlertTrade
	case domain.AgentBehavioral:
		return domain.AlertCorrelation
	default:
		return domain.AlertPattern
	}
}
