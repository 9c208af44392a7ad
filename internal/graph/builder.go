// Package graph assembles the account knowledge graph from the roster,
// scored correlation pairs, and open fraud rings.
package graph

import (
	"log/slog"
	"sort"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Builder produces a fresh KnowledgeGraph each run. Nothing mutates a graph
// after Build returns, which is what lets the agent pipeline read it from
// several goroutines without locks.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logger.With(slog.String("component", "graph_builder"))}
}

// Build assembles the graph:
//
//   - every account becomes exactly one node
//   - referral relationships become directed edges unconditionally
//   - every non-NORMAL correlation result becomes an edge, fraud-flagged iff
//     the pair is FLAGGED
//   - a node is fraud-flagged iff it sits on a FLAGGED edge or belongs to an
//     open ring
//
// Malformed inputs (a missing or self-referencing referrer, a correlation
// result naming an unknown account) are dropped with a warning and never
// abort the build. Building twice from the same inputs yields the same node
// and edge sets.
func (b *Builder) Build(accounts []domain.Account, results []domain.CorrelationResult, openRings []domain.FraudRing) *domain.KnowledgeGraph {
	byID := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	ringMembers := make(map[string]bool)
	for _, r := range openRings {
		if r.Status != domain.RingOpen {
			continue
		}
		for _, id := range r.AccountIDs {
			ringMembers[id] = true
		}
	}

	// Deterministic edge order: referral edges in account-id order, then
	// correlation edges in canonical pair order.
	sortedAccounts := append([]domain.Account(nil), accounts...)
	sort.Slice(sortedAccounts, func(i, j int) bool { return sortedAccounts[i].ID < sortedAccounts[j].ID })

	var edges []domain.Edge
	for _, a := range sortedAccounts {
		if !a.HasReferrer() {
			continue
		}
		if err := a.ValidateReferral(byID); err != nil {
			b.logger.Warn("dropping invalid referral",
				slog.String("account_id", a.ID),
				slog.String("referrer_id", a.ReferrerID),
			)
			continue
		}
		edges = append(edges, domain.Edge{
			Source: a.ReferrerID,
			Target: a.ID,
			Kind:   domain.EdgeReferral,
		})
	}

	sortedResults := append([]domain.CorrelationResult(nil), results...)
	sort.Slice(sortedResults, func(i, j int) bool { return sortedResults[i].PairKey() < sortedResults[j].PairKey() })

	flaggedNodes := make(map[string]bool)
	bestScore := make(map[string]float64)
	for _, r := range sortedResults {
		if r.Status == domain.CorrelationNormal {
			continue
		}
		if _, ok := byID[r.AccountA]; !ok {
			b.logger.Warn("dropping correlation result for unknown account", slog.String("account_id", r.AccountA))
			continue
		}
		if _, ok := byID[r.AccountB]; !ok {
			b.logger.Warn("dropping correlation result for unknown account", slog.String("account_id", r.AccountB))
			continue
		}
		fraud := r.Status == domain.CorrelationFlagged
		edges = append(edges, domain.Edge{
			Source: r.AccountA,
			Target: r.AccountB,
			Kind:   domain.EdgeCorrelation,
			Fraud:  fraud,
			Weight: r.OverallScore,
		})
		if fraud {
			flaggedNodes[r.AccountA] = true
			flaggedNodes[r.AccountB] = true
		}
		if r.OverallScore > bestScore[r.AccountA] {
			bestScore[r.AccountA] = r.OverallScore
		}
		if r.OverallScore > bestScore[r.AccountB] {
			bestScore[r.AccountB] = r.OverallScore
		}
	}

	nodes := make([]domain.Node, 0, len(sortedAccounts))
	for _, a := range sortedAccounts {
		node := domain.Node{
			ID:    a.ID,
			Type:  domain.NodeType(a.Role),
			Name:  a.Name,
			Fraud: flaggedNodes[a.ID] || ringMembers[a.ID],
		}
		if score, ok := bestScore[a.ID]; ok {
			s := score
			node.Score = &s
		}
		nodes = append(nodes, node)
	}

	return &domain.KnowledgeGraph{
		Nodes:   nodes,
		Edges:   edges,
		BuiltAt: time.Now().UTC(),
	}
}

// Snapshot derives the aggregate counters persisted for fast risk lookup.
func Snapshot(g *domain.KnowledgeGraph, riskScore float64) domain.GraphSnapshot {
	fraudNodes := 0
	for _, n := range g.Nodes {
		if n.Fraud {
			fraudNodes++
		}
	}
	return domain.GraphSnapshot{
		TotalNodes:   len(g.Nodes),
		TotalEdges:   len(g.Edges),
		FraudEdges:   g.FraudEdgeCount(),
		FraudNodes:   fraudNodes,
		AvgRiskScore: riskScore,
		CreatedAt:    time.Now().UTC(),
	}
}
