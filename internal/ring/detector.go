// Package ring clusters the suspicious portion of the knowledge graph into
// fraud rings.
package ring

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// DetectorConfig holds the clustering parameters.
type DetectorConfig struct {
	// MaxRingSize is the component size ceiling; larger components are split
	// on their weakest internal edge so one noisy pair cannot merge
	// unrelated rings.
	MaxRingSize int
}

// DefaultDetectorConfig returns the production defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{MaxRingSize: 12}
}

// Detector extracts fraud rings from a built graph. It runs single-pass and
// is not internally parallelized; ring counts are tiny next to the account
// universe.
type Detector struct {
	cfg    DetectorConfig
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig, logger *slog.Logger) *Detector {
	if cfg.MaxRingSize < 2 {
		cfg.MaxRingSize = DefaultDetectorConfig().MaxRingSize
	}
	return &Detector{cfg: cfg, logger: logger.With(slog.String("component", "ring_detector"))}
}

// Detect partitions the subgraph of non-NORMAL correlation edges into
// connected components, splits oversized components, and emits one FraudRing
// per component of two or more members. An existing open ring with an
// identical member set is updated in place (same id, same created-at, new
// evidence appended, scores recomputed) so repeated runs never duplicate
// rings. tradesByAccount supplies settled trades inside the analysis window
// for exposure totals.
func (d *Detector) Detect(g *domain.KnowledgeGraph, tradesByAccount map[string][]domain.Trade, existing []domain.FraudRing) []domain.FraudRing {
	var corrEdges []domain.Edge
	for _, e := range g.Edges {
		if e.Kind == domain.EdgeCorrelation {
			corrEdges = append(corrEdges, e)
		}
	}

	components := splitOversized(connectedComponents(corrEdges), corrEdges, d.cfg.MaxRingSize)

	openByMembers := make(map[string]domain.FraudRing)
	for _, r := range existing {
		if r.Status == domain.RingOpen {
			openByMembers[r.MemberKey()] = r
		}
	}

	now := time.Now().UTC()
	var rings []domain.FraudRing
	for _, members := range components {
		if len(members) < 2 {
			continue
		}

		internal := internalEdges(members, corrEdges)
		meanScore, hasFlagged := edgeStats(internal)

		ring := domain.FraudRing{
			AccountIDs: members,
			Severity:   severity(len(members), meanScore, hasFlagged),
			Confidence: confidence(len(members), len(internal), meanScore),
			Exposure:   exposure(members, tradesByAccount),
			Status:     domain.RingOpen,
			UpdatedAt:  now,
		}

		evidence := buildEvidence(members, internal)

		if prev, ok := openByMembers[ring.MemberKey()]; ok {
			ring.ID = prev.ID
			ring.Name = prev.Name
			ring.Type = prev.Type
			ring.AISummary = prev.AISummary
			ring.CreatedAt = prev.CreatedAt
			ring.Evidence = appendNewEvidence(prev.Evidence, evidence)
		} else {
			ring.ID = uuid.NewString()
			ring.Name = fmt.Sprintf("ring-%s", ring.ID[:8])
			ring.Type = ringType(hasFlagged)
			ring.CreatedAt = now
			ring.Evidence = evidence
		}

		rings = append(rings, ring)
	}

	sort.Slice(rings, func(i, j int) bool { return rings[i].MemberKey() < rings[j].MemberKey() })

	d.logger.Info("ring detection complete",
		slog.Int("components", len(components)),
		slog.Int("rings", len(rings)),
	)
	return rings
}

// connectedComponents groups edge endpoints with union-find and returns each
// component's members sorted.
func connectedComponents(edges []domain.Edge) [][]string {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		if _, ok := parent[a]; !ok {
			parent[a] = a
		}
		if _, ok := parent[b]; !ok {
			parent[b] = b
		}
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, e := range edges {
		union(e.Source, e.Target)
	}

	groups := make(map[string][]string)
	for node := range parent {
		root := find(node)
		groups[root] = append(groups[root], node)
	}

	var components [][]string
	for _, members := range groups {
		sort.Strings(members)
		components = append(components, members)
	}
	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })
	return components
}

// splitOversized cuts components above the size ceiling on their weakest
// internal correlation edge (lowest overallScore, i.e. highest inverse
// weight) until every piece fits. Cutting the weakest evidence first keeps
// the strongly-correlated cores together.
func splitOversized(components [][]string, edges []domain.Edge, maxSize int) [][]string {
	var out [][]string
	queue := append([][]string(nil), components...)
	for len(queue) > 0 {
		members := queue[0]
		queue = queue[1:]

		if len(members) <= maxSize {
			out = append(out, members)
			continue
		}

		internal := internalEdges(members, edges)
		if len(internal) == 0 {
			out = append(out, members)
			continue
		}

		weakest := 0
		for i := 1; i < len(internal); i++ {
			if internal[i].Weight < internal[weakest].Weight {
				weakest = i
			}
		}
		remaining := append([]domain.Edge(nil), internal[:weakest]...)
		remaining = append(remaining, internal[weakest+1:]...)

		sub := connectedComponents(remaining)
		if len(sub) == 1 && len(sub[0]) == len(members) {
			// Cut did not disconnect anything (parallel paths); give up on
			// this component rather than loop forever.
			out = append(out, members)
			continue
		}
		// Nodes isolated by the cut drop out here; one account is not a ring.
		queue = append(queue, sub...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// internalEdges returns correlation edges with both endpoints inside the
// member set.
func internalEdges(members []string, edges []domain.Edge) []domain.Edge {
	inSet := make(map[string]bool, len(members))
	for _, m := range members {
		inSet[m] = true
	}
	var internal []domain.Edge
	for _, e := range edges {
		if inSet[e.Source] && inSet[e.Target] {
			internal = append(internal, e)
		}
	}
	return internal
}

func edgeStats(edges []domain.Edge) (meanScore float64, hasFlagged bool) {
	if len(edges) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, e := range edges {
		sum += e.Weight
		if e.Fraud {
			hasFlagged = true
		}
	}
	return sum / float64(len(edges)), hasFlagged
}

// severity maps component size and evidence strength onto the 1..5 ordinal.
// Any FLAGGED internal edge forces a minimum of 3.
func severity(size int, meanScore float64, hasFlagged bool) int {
	sev := 1
	switch {
	case size >= 8:
		sev += 2
	case size >= 4:
		sev++
	}
	if meanScore >= 0.6 {
		sev++
	}
	if hasFlagged && sev < 3 {
		sev = 3
	}
	if sev > 5 {
		sev = 5
	}
	return sev
}

// confidence is the mean overallScore of internal edges scaled by edge
// density, penalizing rings held together by sparse evidence.
func confidence(size, internalCount int, meanScore float64) float64 {
	possible := size * (size - 1) / 2
	if possible == 0 {
		return 0
	}
	c := meanScore * float64(internalCount) / float64(possible)
	if c > 1 {
		c = 1
	}
	return c
}

// exposure sums absolute settled profit and loss across member trades.
func exposure(members []string, tradesByAccount map[string][]domain.Trade) float64 {
	total := 0.0
	for _, id := range members {
		for _, t := range tradesByAccount[id] {
			if t.Profit == nil {
				continue
			}
			p := *t.Profit
			if p < 0 {
				p = -p
			}
			total += p
		}
	}
	return total
}

func ringType(hasFlagged bool) string {
	if hasFlagged {
		return "flagged_correlation"
	}
	return "suspicious_correlation"
}

// buildEvidence renders one line per internal edge plus a membership line.
func buildEvidence(members []string, internal []domain.Edge) []string {
	evidence := []string{fmt.Sprintf("component of %d correlated accounts", len(members))}
	for _, e := range internal {
		label := "suspicious"
		if e.Fraud {
			label = "flagged"
		}
		evidence = append(evidence, fmt.Sprintf("%s correlation %.2f between %s and %s", label, e.Weight, e.Source, e.Target))
	}
	return evidence
}

// appendNewEvidence appends lines from fresh that the ring does not already
// carry, preserving order.
func appendNewEvidence(existing, fresh []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	out := append([]string(nil), existing...)
	for _, f := range fresh {
		if !seen[f] {
			out = append(out, f)
			seen[f] = true
		}
	}
	return out
}
