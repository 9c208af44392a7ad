// Package agent implements the multi-stage analysis pipeline: structural,
// temporal, and behavioral agents that read an immutable graph snapshot and
// produce findings, plus the runner that executes them in parallel and the
// combiner that merges their outputs into alerts.
package agent

import (
	"context"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Snapshot is the read-only input handed to every agent. The graph is never
// mutated after publication and each agent writes only its own
// AgentAnalysis, so agents share no mutable state and need no locks.
type Snapshot struct {
	Graph           *domain.KnowledgeGraph
	Rings           []domain.FraudRing
	TradesByAccount map[string][]domain.Trade
	// PriorFindings carries the findings of the last complete analysis so
	// agents can weigh persistence of an anomaly across runs.
	PriorFindings []domain.Finding
	// Window bounds the trade activity under analysis.
	WindowStart time.Time
	WindowEnd   time.Time
}

// Agent is one independent analysis stage. Analyze must be a pure function
// of the snapshot: no side effects, no retained references.
type Agent interface {
	Type() domain.AgentType
	Name() string
	Analyze(ctx context.Context, snap Snapshot) (Result, error)
}

// Result is the successful output of one agent.
type Result struct {
	Findings []domain.Finding
	Summary  string
	Metrics  map[string]float64
}

// referralParents maps each account to its referrer from the graph's
// referral edges.
func referralParents(g *domain.KnowledgeGraph) map[string]string {
	parents := make(map[string]string)
	for _, e := range g.Edges {
		if e.Kind == domain.EdgeReferral {
			parents[e.Target] = e.Source
		}
	}
	return parents
}

// referralRoot walks the referral chain up to the partner at its root.
func referralRoot(id string, parents map[string]string) string {
	seen := map[string]bool{id: true}
	for {
		p, ok := parents[id]
		if !ok || seen[p] {
			return id
		}
		seen[p] = true
		id = p
	}
}

// referralRelated reports whether one account is an ancestor of the other in
// the referral tree, or both share a direct referrer.
func referralRelated(a, b string, parents map[string]string) bool {
	if isAncestor(a, b, parents) || isAncestor(b, a, parents) {
		return true
	}
	pa, oka := parents[a]
	pb, okb := parents[b]
	return oka && okb && pa == pb
}

func isAncestor(ancestor, node string, parents map[string]string) bool {
	seen := map[string]bool{node: true}
	for {
		p, ok := parents[node]
		if !ok || seen[p] {
			return false
		}
		if p == ancestor {
			return true
		}
		seen[p] = true
		node = p
	}
}
