package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// BehavioralConfig tunes amount/direction pattern detection.
type BehavioralConfig struct {
	// PairWindow is the maximum opening-time gap for two trades to be
	// compared as a pattern pair.
	PairWindow time.Duration
	// StakeTolerance is the maximum relative stake difference for a pair to
	// count as amount-matched.
	StakeTolerance float64
	// MinOccurrences is how many pattern pairs an account pair needs before
	// a finding is raised.
	MinOccurrences int
}

// DefaultBehavioralConfig returns the production defaults.
func DefaultBehavioralConfig() BehavioralConfig {
	return BehavioralConfig{
		PairWindow:     5 * time.Second,
		StakeTolerance: 0.1,
		MinOccurrences: 3,
	}
}

// BehavioralAgent inspects amount/direction patterns across correlated
// account pairs: mirrored hedging (opposite direction, matched stake) and
// wash-trade-like copy pairs (same direction, identical stake).
type BehavioralAgent struct {
	cfg BehavioralConfig
}

// NewBehavioralAgent creates a BehavioralAgent.
func NewBehavioralAgent(cfg BehavioralConfig) *BehavioralAgent {
	if cfg.PairWindow <= 0 {
		cfg = DefaultBehavioralConfig()
	}
	return &BehavioralAgent{cfg: cfg}
}

func (a *BehavioralAgent) Type() domain.AgentType { return domain.AgentBehavioral }
func (a *BehavioralAgent) Name() string           { return "behavioral-pattern" }

// Analyze only examines account pairs that already carry a correlation edge;
// behavioral patterns between uncorrelated accounts are noise at this stage.
func (a *BehavioralAgent) Analyze(ctx context.Context, snap Snapshot) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var findings []domain.Finding
	mirroredPairs := 0
	washPairs := 0

	for _, e := range snap.Graph.Edges {
		if e.Kind != domain.EdgeCorrelation {
			continue
		}
		mirrored, wash := a.countPatterns(snap.TradesByAccount[e.Source], snap.TradesByAccount[e.Target])
		if mirrored >= a.cfg.MinOccurrences {
			mirroredPairs++
			findings = append(findings, domain.Finding{
				ID:          uuid.NewString(),
				AgentType:   domain.AgentBehavioral,
				Severity:    domain.SeverityCritical,
				Title:       "mirrored hedging pattern",
				Description: fmt.Sprintf("accounts %s and %s placed %d opposite-direction trades with matched stakes", e.Source, e.Target, mirrored),
				EntityIDs:   []string{e.Source, e.Target},
			})
		}
		if wash >= a.cfg.MinOccurrences {
			washPairs++
			findings = append(findings, domain.Finding{
				ID:          uuid.NewString(),
				AgentType:   domain.AgentBehavioral,
				Severity:    domain.SeverityWarning,
				Title:       "symmetric copy pattern",
				Description: fmt.Sprintf("accounts %s and %s placed %d same-direction trades with identical stakes", e.Source, e.Target, wash),
				EntityIDs:   []string{e.Source, e.Target},
			})
		}
	}

	summary := fmt.Sprintf("%d mirrored-hedging pairs, %d symmetric copy pairs", mirroredPairs, washPairs)
	metrics := map[string]float64{
		"mirrored_pairs": float64(mirroredPairs),
		"wash_pairs":     float64(washPairs),
	}
	return Result{Findings: findings, Summary: summary, Metrics: metrics}, nil
}

// countPatterns counts mirrored and copy pairs between two accounts' settled
// trades. Quadratic in the per-account trade count inside the window, which
// stays small for one analysis batch.
func (a *BehavioralAgent) countPatterns(tradesA, tradesB []domain.Trade) (mirrored, wash int) {
	for _, ta := range tradesA {
		if !ta.Settled() {
			continue
		}
		for _, tb := range tradesB {
			if !tb.Settled() || ta.Symbol != tb.Symbol {
				continue
			}
			gap := ta.Timestamp.Sub(tb.Timestamp)
			if gap < 0 {
				gap = -gap
			}
			if gap > a.cfg.PairWindow {
				continue
			}
			if ta.Direction == tb.Direction.Opposite() && stakeMatched(ta.Stake, tb.Stake, a.cfg.StakeTolerance) {
				mirrored++
			}
			if ta.Direction == tb.Direction && ta.Stake == tb.Stake {
				wash++
			}
		}
	}
	return mirrored, wash
}

func stakeMatched(a, b, tolerance float64) bool {
	max := a
	if b > max {
		max = b
	}
	if max <= 0 {
		return a == b
	}
	rel := (a - b) / max
	if rel < 0 {
		rel = -rel
	}
	return rel <= tolerance
}
