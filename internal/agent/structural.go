package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// StructuralConfig tunes the topology heuristics.
type StructuralConfig struct {
	// HubDegree is the correlation-edge degree at which a node is reported
	// as a hub.
	HubDegree int
	// FlaggedChildren is how many fraud-flagged referred accounts make a
	// referrer itself anomalous.
	FlaggedChildren int
}

// DefaultStructuralConfig returns the production defaults.
func DefaultStructuralConfig() StructuralConfig {
	return StructuralConfig{HubDegree: 3, FlaggedChildren: 2}
}

// StructuralAgent inspects graph topology: correlation hubs, referral-tree
// anomalies, and correlation edges that cross referral branches.
type StructuralAgent struct {
	cfg StructuralConfig
}

// NewStructuralAgent creates a StructuralAgent.
func NewStructuralAgent(cfg StructuralConfig) *StructuralAgent {
	if cfg.HubDegree <= 0 {
		cfg = DefaultStructuralConfig()
	}
	return &StructuralAgent{cfg: cfg}
}

func (a *StructuralAgent) Type() domain.AgentType { return domain.AgentStructural }
func (a *StructuralAgent) Name() string           { return "structural-topology" }

// Analyze walks the graph once, collecting per-node correlation degree,
// cross-branch correlation edges, and referrers whose downline accumulates
// fraud flags.
func (a *StructuralAgent) Analyze(ctx context.Context, snap Snapshot) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	g := snap.Graph
	parents := referralParents(g)

	degree := make(map[string]int)
	crossBranch := 0
	var findings []domain.Finding

	for _, e := range g.Edges {
		if e.Kind != domain.EdgeCorrelation {
			continue
		}
		degree[e.Source]++
		degree[e.Target]++

		if referralRoot(e.Source, parents) != referralRoot(e.Target, parents) {
			crossBranch++
			sev := domain.SeverityWarning
			if e.Fraud {
				sev = domain.SeverityCritical
			}
			findings = append(findings, domain.Finding{
				ID:          uuid.NewString(),
				AgentType:   domain.AgentStructural,
				Severity:    sev,
				Title:       "cross-branch correlation",
				Description: fmt.Sprintf("accounts %s and %s correlate (%.2f) across unrelated referral branches", e.Source, e.Target, e.Weight),
				EntityIDs:   []string{e.Source, e.Target},
			})
		}
	}

	hubIDs := make([]string, 0)
	for id, deg := range degree {
		if deg >= a.cfg.HubDegree {
			hubIDs = append(hubIDs, id)
		}
	}
	sort.Strings(hubIDs)
	for _, id := range hubIDs {
		findings = append(findings, domain.Finding{
			ID:          uuid.NewString(),
			AgentType:   domain.AgentStructural,
			Severity:    domain.SeverityWarning,
			Title:       "correlation hub",
			Description: fmt.Sprintf("account %s correlates with %d distinct accounts", id, degree[id]),
			EntityIDs:   []string{id},
		})
	}

	// Referrers whose downline accumulates fraud flags.
	flaggedChildren := make(map[string]int)
	for _, n := range g.Nodes {
		if !n.Fraud {
			continue
		}
		if p, ok := parents[n.ID]; ok {
			flaggedChildren[p]++
		}
	}
	referrers := make([]string, 0, len(flaggedChildren))
	for id := range flaggedChildren {
		referrers = append(referrers, id)
	}
	sort.Strings(referrers)
	for _, id := range referrers {
		if flaggedChildren[id] < a.cfg.FlaggedChildren {
			continue
		}
		findings = append(findings, domain.Finding{
			ID:          uuid.NewString(),
			AgentType:   domain.AgentStructural,
			Severity:    domain.SeverityCritical,
			Title:       "referral downline anomaly",
			Description: fmt.Sprintf("referrer %s has %d fraud-flagged referred accounts", id, flaggedChildren[id]),
			EntityIDs:   []string{id},
		})
	}

	summary := fmt.Sprintf("%d nodes, %d edges inspected: %d hubs, %d cross-branch correlations", len(g.Nodes), len(g.Edges), len(hubIDs), crossBranch)
	metrics := map[string]float64{
		"hubs":               float64(len(hubIDs)),
		"cross_branch_edges": float64(crossBranch),
		"fraud_edge_density": g.FraudEdgeDensity(),
	}
	return Result{Findings: findings, Summary: summary, Metrics: metrics}, nil
}
