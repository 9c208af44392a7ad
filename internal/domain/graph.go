package domain

import "time"

// NodeType mirrors AccountRole for graph rendering.
type NodeType string

const (
	NodePartner   NodeType = "partner"
	NodeAffiliate NodeType = "affiliate"
	NodeClient    NodeType = "client"
)

// EdgeKind tags the provenance of an edge. Referral edges come from the
// account tree and are directed referrer→referred; correlation edges come
// from scored pairs and are undirected (stored with canonical endpoint
// order). Both kinds live in one edge set so ring traversal stays uniform.
type EdgeKind string

const (
	EdgeReferral    EdgeKind = "referral"
	EdgeCorrelation EdgeKind = "correlation"
)

// Node is one account in the knowledge graph.
type Node struct {
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Name  string   `json:"name"`
	Fraud bool     `json:"fraud"`
	Score *float64 `json:"score,omitempty"` // highest overall correlation score this node participates in
}

// Edge connects two existing nodes. Weight is the correlation overallScore
// for correlation edges and zero for referral edges.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	Fraud  bool     `json:"fraud"`
	Weight float64  `json:"weight,omitempty"`
}

// KnowledgeGraph is the assembled account graph. It is treated as immutable
// once published to the agent pipeline; each analysis run builds a fresh one.
type KnowledgeGraph struct {
	Nodes   []Node    `json:"nodes"`
	Edges   []Edge    `json:"edges"`
	BuiltAt time.Time `json:"built_at"`
}

// Node returns the node with the given id, if present.
func (g *KnowledgeGraph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// FraudEdgeCount returns the number of edges carrying the fraud flag.
func (g *KnowledgeGraph) FraudEdgeCount() int {
	count := 0
	for _, e := range g.Edges {
		if e.Fraud {
			count++
		}
	}
	return count
}

// FraudEdgeDensity is the fraction of edges carrying the fraud flag, in
// [0,1]. An empty edge set has density zero.
func (g *KnowledgeGraph) FraudEdgeDensity() float64 {
	if len(g.Edges) == 0 {
		return 0
	}
	return float64(g.FraudEdgeCount()) / float64(len(g.Edges))
}

// GraphSnapshot is the periodic aggregate persisted for fast risk lookup.
type GraphSnapshot struct {
	ID           int64     `json:"id"`
	TotalNodes   int       `json:"total_nodes"`
	TotalEdges   int       `json:"total_edges"`
	FraudEdges   int       `json:"fraud_edges"`
	FraudNodes   int       `json:"fraud_nodes"`
	AvgRiskScore float64   `json:"avg_risk_score"`
	CreatedAt    time.Time `json:"created_at"`
}
