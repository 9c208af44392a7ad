package graph

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

func testBuilder() *Builder {
	return NewBuilder(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testAccounts() []domain.Account {
	return []domain.Account{
		{ID: "p1", Role: domain.RolePartner, Name: "Partner One"},
		{ID: "aff1", Role: domain.RoleAffiliate, Name: "Affiliate One", ReferrerID: "p1"},
		{ID: "cl1", Role: domain.RoleClient, Name: "Client One", ReferrerID: "aff1"},
		{ID: "cl2", Role: domain.RoleClient, Name: "Client Two", ReferrerID: "aff1"},
	}
}

func TestBuildNodesAndReferralEdges(t *testing.T) {
	g := testBuilder().Build(testAccounts(), nil, nil)

	require.Len(t, g.Nodes, 4)
	require.Len(t, g.Edges, 3)
	for _, e := range g.Edges {
		assert.Equal(t, domain.EdgeReferral, e.Kind)
		assert.False(t, e.Fraud)
	}

	node, ok := g.Node("aff1")
	require.True(t, ok)
	assert.Equal(t, domain.NodeType(domain.RoleAffiliate), node.Type)
	assert.False(t, node.Fraud)
	assert.Nil(t, node.Score)
}

func TestBuildDropsInvalidReferral(t *testing.T) {
	accounts := []domain.Account{
		{ID: "p1", Role: domain.RolePartner},
		{ID: "cl1", Role: domain.RoleClient, ReferrerID: "ghost"},
		{ID: "cl2", Role: domain.RoleClient, ReferrerID: "cl2"},
	}

	g := testBuilder().Build(accounts, nil, nil)

	assert.Len(t, g.Nodes, 3)
	assert.Empty(t, g.Edges)
}

func TestBuildCorrelationEdges(t *testing.T) {
	results := []domain.CorrelationResult{
		{AccountA: "cl1", AccountB: "cl2", OverallScore: 0.9, Status: domain.CorrelationFlagged},
		{AccountA: "aff1", AccountB: "cl1", OverallScore: 0.5, Status: domain.CorrelationSuspicious},
		{AccountA: "aff1", AccountB: "cl2", OverallScore: 0.1, Status: domain.CorrelationNormal},
	}

	g := testBuilder().Build(testAccounts(), results, nil)

	var corr []domain.Edge
	for _, e := range g.Edges {
		if e.Kind == domain.EdgeCorrelation {
			corr = append(corr, e)
		}
	}
	// NORMAL results never become edges.
	require.Len(t, corr, 2)
	assert.Equal(t, 1, g.FraudEdgeCount())

	cl1, _ := g.Node("cl1")
	cl2, _ := g.Node("cl2")
	aff1, _ := g.Node("aff1")
	assert.True(t, cl1.Fraud)
	assert.True(t, cl2.Fraud)
	assert.False(t, aff1.Fraud, "suspicious edge alone does not fraud-flag a node")

	require.NotNil(t, cl1.Score)
	assert.InDelta(t, 0.9, *cl1.Score, 1e-9)
	require.NotNil(t, aff1.Score)
	assert.InDelta(t, 0.5, *aff1.Score, 1e-9)
}

func TestBuildDropsResultForUnknownAccount(t *testing.T) {
	results := []domain.CorrelationResult{
		{AccountA: "cl1", AccountB: "stranger", OverallScore: 0.9, Status: domain.CorrelationFlagged},
	}

	g := testBuilder().Build(testAccounts(), results, nil)

	assert.Equal(t, 0, g.FraudEdgeCount())
	cl1, _ := g.Node("cl1")
	assert.False(t, cl1.Fraud)
}

func TestBuildMarksOpenRingMembers(t *testing.T) {
	rings := []domain.FraudRing{
		{ID: "r1", Status: domain.RingOpen, AccountIDs: []string{"cl1", "cl2"}},
		{ID: "r2", Status: domain.RingClosed, AccountIDs: []string{"aff1"}},
	}

	g := testBuilder().Build(testAccounts(), nil, rings)

	cl1, _ := g.Node("cl1")
	cl2, _ := g.Node("cl2")
	aff1, _ := g.Node("aff1")
	assert.True(t, cl1.Fraud)
	assert.True(t, cl2.Fraud)
	assert.False(t, aff1.Fraud, "members of non-open rings are not flagged")
}

func TestBuildIsDeterministic(t *testing.T) {
	results := []domain.CorrelationResult{
		{AccountA: "aff1", AccountB: "cl1", OverallScore: 0.5, Status: domain.CorrelationSuspicious},
		{AccountA: "cl1", AccountB: "cl2", OverallScore: 0.8, Status: domain.CorrelationFlagged},
	}

	first := testBuilder().Build(testAccounts(), results, nil)
	second := testBuilder().Build(testAccounts(), results, nil)

	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Edges, second.Edges)
}

func TestSnapshotCounters(t *testing.T) {
	g := &domain.KnowledgeGraph{
		Nodes: []domain.Node{
			{ID: "a", Fraud: true},
			{ID: "b", Fraud: true},
			{ID: "c"},
		},
		Edges: []domain.Edge{
			{Source: "a", Target: "b", Kind: domain.EdgeCorrelation, Fraud: true},
			{Source: "b", Target: "c", Kind: domain.EdgeCorrelation},
			{Source: "a", Target: "c", Kind: domain.EdgeReferral},
		},
		BuiltAt: time.Now().UTC(),
	}

	snap := Snapshot(g, 0.42)

	assert.Equal(t, 3, snap.TotalNodes)
	assert.Equal(t, 3, snap.TotalEdges)
	assert.Equal(t, 1, snap.FraudEdges)
	assert.Equal(t, 2, snap.FraudNodes)
	assert.InDelta(t, 0.42, snap.AvgRiskScore, 1e-9)
}
