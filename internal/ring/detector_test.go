package ring

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

func testDetector(maxSize int) *Detector {
	return NewDetector(DetectorConfig{MaxRingSize: maxSize}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func corrEdge(a, b string, weight float64, fraud bool) domain.Edge {
	return domain.Edge{Source: a, Target: b, Kind: domain.EdgeCorrelation, Fraud: fraud, Weight: weight}
}

func graphOf(edges ...domain.Edge) *domain.KnowledgeGraph {
	return &domain.KnowledgeGraph{Edges: edges, BuiltAt: time.Now().UTC()}
}

func TestDetectEmptyGraph(t *testing.T) {
	rings := testDetector(12).Detect(graphOf(), nil, nil)
	assert.Empty(t, rings)
}

func TestDetectSinglePairBecomesRing(t *testing.T) {
	g := graphOf(corrEdge("cl1", "cl2", 0.8, true))

	profit := 15.0
	loss := -15.0
	trades := map[string][]domain.Trade{
		"cl1": {{AccountID: "cl1", Profit: &profit, Status: domain.TradeWon}},
		"cl2": {{AccountID: "cl2", Profit: &loss, Status: domain.TradeLost}},
	}

	rings := testDetector(12).Detect(g, trades, nil)

	require.Len(t, rings, 1)
	r := rings[0]
	assert.Equal(t, []string{"cl1", "cl2"}, r.AccountIDs)
	assert.Equal(t, domain.RingOpen, r.Status)
	assert.Equal(t, "flagged_correlation", r.Type)
	assert.NotEmpty(t, r.ID)
	assert.NotEmpty(t, r.Name)
	assert.GreaterOrEqual(t, r.Severity, 3, "a flagged edge forces severity 3")
	assert.InDelta(t, 30.0, r.Exposure, 1e-9)
	assert.NotEmpty(t, r.Evidence)
}

func TestDetectIgnoresReferralEdges(t *testing.T) {
	g := graphOf(domain.Edge{Source: "p1", Target: "aff1", Kind: domain.EdgeReferral})
	rings := testDetector(12).Detect(g, nil, nil)
	assert.Empty(t, rings)
}

func TestDetectSeparateComponents(t *testing.T) {
	g := graphOf(
		corrEdge("a1", "a2", 0.5, false),
		corrEdge("b1", "b2", 0.6, false),
		corrEdge("b2", "b3", 0.7, false),
	)

	rings := testDetector(12).Detect(g, nil, nil)

	require.Len(t, rings, 2)
	assert.Equal(t, []string{"a1", "a2"}, rings[0].AccountIDs)
	assert.Equal(t, []string{"b1", "b2", "b3"}, rings[1].AccountIDs)
	assert.Equal(t, "suspicious_correlation", rings[0].Type)
}

func TestDetectReusesExistingOpenRing(t *testing.T) {
	g := graphOf(corrEdge("cl1", "cl2", 0.8, true))
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := []domain.FraudRing{{
		ID:         "ring-0001",
		Name:       "ring-orig",
		Type:       "flagged_correlation",
		AccountIDs: []string{"cl2", "cl1"},
		Status:     domain.RingOpen,
		AISummary:  "prior narrative",
		Evidence:   []string{"older evidence line"},
		CreatedAt:  created,
	}}

	rings := testDetector(12).Detect(g, nil, existing)

	require.Len(t, rings, 1)
	r := rings[0]
	assert.Equal(t, "ring-0001", r.ID)
	assert.Equal(t, "ring-orig", r.Name)
	assert.Equal(t, created, r.CreatedAt)
	assert.Equal(t, "prior narrative", r.AISummary)
	assert.Equal(t, "older evidence line", r.Evidence[0], "prior evidence is preserved")
	assert.Greater(t, len(r.Evidence), 1, "fresh evidence is appended")
}

func TestDetectClosedRingNotReused(t *testing.T) {
	g := graphOf(corrEdge("cl1", "cl2", 0.8, true))
	existing := []domain.FraudRing{{
		ID:         "ring-0001",
		AccountIDs: []string{"cl1", "cl2"},
		Status:     domain.RingClosed,
	}}

	rings := testDetector(12).Detect(g, nil, existing)

	require.Len(t, rings, 1)
	assert.NotEqual(t, "ring-0001", rings[0].ID)
}

func TestDetectSplitsOversizedComponent(t *testing.T) {
	// Two tight triangles joined by one weak bridge. With a ceiling of 3 the
	// bridge is the weakest internal edge and gets cut.
	g := graphOf(
		corrEdge("a1", "a2", 0.9, true),
		corrEdge("a2", "a3", 0.9, true),
		corrEdge("a1", "a3", 0.9, true),
		corrEdge("a3", "b1", 0.5, false), // bridge
		corrEdge("b1", "b2", 0.9, true),
		corrEdge("b2", "b3", 0.9, true),
		corrEdge("b1", "b3", 0.9, true),
	)

	rings := testDetector(3).Detect(g, nil, nil)

	require.Len(t, rings, 2)
	assert.Equal(t, []string{"a1", "a2", "a3"}, rings[0].AccountIDs)
	assert.Equal(t, []string{"b1", "b2", "b3"}, rings[1].AccountIDs)
}

func TestDetectIdempotent(t *testing.T) {
	g := graphOf(
		corrEdge("a1", "a2", 0.8, true),
		corrEdge("a2", "a3", 0.6, false),
	)

	first := testDetector(12).Detect(g, nil, nil)
	require.Len(t, first, 1)

	second := testDetector(12).Detect(g, nil, first)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].CreatedAt, second[0].CreatedAt)
	assert.Equal(t, first[0].Evidence, second[0].Evidence, "re-running adds no duplicate evidence")
}

func TestSeverityScale(t *testing.T) {
	assert.Equal(t, 1, severity(2, 0.3, false))
	assert.Equal(t, 2, severity(2, 0.7, false))
	assert.Equal(t, 3, severity(2, 0.3, true))
	assert.Equal(t, 3, severity(4, 0.7, false))
	assert.Equal(t, 4, severity(8, 0.7, false))
	assert.Equal(t, 4, severity(8, 0.7, true))
}

func TestConfidencePenalizesSparseEvidence(t *testing.T) {
	dense := confidence(3, 3, 0.8)
	sparse := confidence(3, 1, 0.8)
	assert.Greater(t, dense, sparse)
	assert.InDelta(t, 0.8, dense, 1e-9)
	assert.Zero(t, confidence(1, 0, 0.8))
}

func TestExposureSkipsOpenTrades(t *testing.T) {
	win := 20.0
	trades := map[string][]domain.Trade{
		"a1": {
			{Profit: &win, Status: domain.TradeWon},
			{Status: domain.TradeOpen},
		},
	}
	assert.InDelta(t, 20.0, exposure([]string{"a1"}, trades), 1e-9)
}
