package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/store/memory"
)

type memCorrCache struct {
	results map[string]domain.CorrelationResult
}

func newMemCorrCache() *memCorrCache {
	return &memCorrCache{results: make(map[string]domain.CorrelationResult)}
}

func (c *memCorrCache) SetResult(_ context.Context, result domain.CorrelationResult) error {
	c.results[result.PairKey()] = result
	return nil
}

func (c *memCorrCache) GetResult(_ context.Context, accountA, accountB string) (domain.CorrelationResult, error) {
	a, b := domain.CanonicalPair(accountA, accountB)
	result, ok := c.results[a+":"+b]
	if !ok {
		return domain.CorrelationResult{}, domain.ErrNotFound
	}
	return result, nil
}

func (c *memCorrCache) GetResults(_ context.Context, pairKeys []string) (map[string]domain.CorrelationResult, error) {
	out := make(map[string]domain.CorrelationResult)
	for _, key := range pairKeys {
		if result, ok := c.results[key]; ok {
			out[key] = result
		}
	}
	return out, nil
}

func TestGetGraphNoSnapshot(t *testing.T) {
	h := NewGraphHandler(memory.NewSnapshotStore(), nil, discardLogger())

	rec := httptest.NewRecorder()
	h.GetGraph(rec, httptest.NewRequest(http.MethodGet, "/api/graph", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		HasSnapshot bool `json:"hasSnapshot"`
	}
	decodeJSON(t, rec, &body)
	assert.False(t, body.HasSnapshot)
}

func TestGetGraphLatestSnapshot(t *testing.T) {
	store := memory.NewSnapshotStore()
	base := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(context.Background(), domain.GraphSnapshot{
		TotalNodes: 3, TotalEdges: 2, CreatedAt: base,
	}))
	require.NoError(t, store.Append(context.Background(), domain.GraphSnapshot{
		TotalNodes: 5, TotalEdges: 4, FraudEdges: 1, CreatedAt: base.Add(time.Hour),
	}))
	h := NewGraphHandler(store, nil, discardLogger())

	rec := httptest.NewRecorder()
	h.GetGraph(rec, httptest.NewRequest(http.MethodGet, "/api/graph", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		HasSnapshot bool                 `json:"hasSnapshot"`
		Snapshot    domain.GraphSnapshot `json:"snapshot"`
	}
	decodeJSON(t, rec, &body)
	assert.True(t, body.HasSnapshot)
	assert.Equal(t, 5, body.Snapshot.TotalNodes)
	assert.Equal(t, 1, body.Snapshot.FraudEdges)
}

func TestGetCorrelationEitherOrder(t *testing.T) {
	cache := newMemCorrCache()
	require.NoError(t, cache.SetResult(context.Background(), domain.CorrelationResult{
		AccountA:     "cl-1",
		AccountB:     "cl-2",
		OverallScore: 0.81,
		Status:       domain.CorrelationFlagged,
	}))
	h := NewGraphHandler(memory.NewSnapshotStore(), cache, discardLogger())

	for _, pair := range [][2]string{{"cl-1", "cl-2"}, {"cl-2", "cl-1"}} {
		req := httptest.NewRequest(http.MethodGet, "/api/correlations/"+pair[0]+"/"+pair[1], nil)
		req.SetPathValue("a", pair[0])
		req.SetPathValue("b", pair[1])
		rec := httptest.NewRecorder()
		h.GetCorrelation(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var result domain.CorrelationResult
		decodeJSON(t, rec, &result)
		assert.Equal(t, "cl-1", result.AccountA)
		assert.InDelta(t, 0.81, result.OverallScore, 1e-9)
	}
}

func TestGetCorrelationMiss(t *testing.T) {
	h := NewGraphHandler(memory.NewSnapshotStore(), newMemCorrCache(), discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/correlations/cl-1/cl-9", nil)
	req.SetPathValue("a", "cl-1")
	req.SetPathValue("b", "cl-9")
	rec := httptest.NewRecorder()
	h.GetCorrelation(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCorrelationNoCache(t *testing.T) {
	h := NewGraphHandler(memory.NewSnapshotStore(), nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/correlations/cl-1/cl-2", nil)
	req.SetPathValue("a", "cl-1")
	req.SetPathValue("b", "cl-2")
	rec := httptest.NewRecorder()
	h.GetCorrelation(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCorrelationSameAccount(t *testing.T) {
	h := NewGraphHandler(memory.NewSnapshotStore(), newMemCorrCache(), discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/correlations/cl-1/cl-1", nil)
	req.SetPathValue("a", "cl-1")
	req.SetPathValue("b", "cl-1")
	rec := httptest.NewRecorder()
	h.GetCorrelation(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
