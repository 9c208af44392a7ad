package correlation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCache struct {
	mu      sync.Mutex
	results map[string]domain.CorrelationResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{results: make(map[string]domain.CorrelationResult)}
}

func (c *fakeCache) SetResult(_ context.Context, result domain.CorrelationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result.PairKey()] = result
	return nil
}

func (c *fakeCache) GetResult(_ context.Context, accountA, accountB string) (domain.CorrelationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, b := domain.CanonicalPair(accountA, accountB)
	res, ok := c.results[a+":"+b]
	if !ok {
		return domain.CorrelationResult{}, domain.ErrNotFound
	}
	return res, nil
}

func (c *fakeCache) GetResults(_ context.Context, pairKeys []string) (map[string]domain.CorrelationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.CorrelationResult)
	for _, k := range pairKeys {
		if res, ok := c.results[k]; ok {
			out[k] = res
		}
	}
	return out, nil
}

func TestScoreAllEnumeratesEveryPair(t *testing.T) {
	b := NewBatchScorer(NewScorer(DefaultScorerConfig()), nil, 4, discardLogger())
	ids := []string{"acc-d", "acc-b", "acc-a", "acc-c"}

	trades := map[string][]domain.Trade{}
	for _, id := range ids {
		trades[id] = []domain.Trade{
			settledTrade(id, id+"-c1", domain.DirectionCall, "R_50", 10, baseTime),
		}
	}

	results, err := b.ScoreAll(context.Background(), ids, trades)
	require.NoError(t, err)

	// 4 accounts give C(4,2) = 6 pairs, sorted by canonical key.
	require.Len(t, results, 6)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].PairKey(), results[i].PairKey())
	}
	assert.Equal(t, "acc-a", results[0].AccountA)
	assert.Equal(t, "acc-b", results[0].AccountB)
}

func TestScoreAllEmptyUniverse(t *testing.T) {
	b := NewBatchScorer(NewScorer(DefaultScorerConfig()), nil, 2, discardLogger())

	results, err := b.ScoreAll(context.Background(), []string{"lone"}, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestScoreAllWritesThroughCache(t *testing.T) {
	cache := newFakeCache()
	b := NewBatchScorer(NewScorer(DefaultScorerConfig()), cache, 2, discardLogger())
	trades := map[string][]domain.Trade{
		"acc-a": {settledTrade("acc-a", "a1", domain.DirectionCall, "R_50", 10, baseTime)},
		"acc-b": {settledTrade("acc-b", "b1", domain.DirectionCall, "R_50", 10, baseTime.Add(time.Second))},
	}

	results, err := b.ScoreAll(context.Background(), []string{"acc-a", "acc-b"}, trades)
	require.NoError(t, err)
	require.Len(t, results, 1)

	cached, err := cache.GetResult(context.Background(), "acc-b", "acc-a")
	require.NoError(t, err)
	assert.Equal(t, results[0].OverallScore, cached.OverallScore)
}

func TestScoreAllCancelledContext(t *testing.T) {
	b := NewBatchScorer(NewScorer(DefaultScorerConfig()), nil, 1, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ids := []string{"acc-a", "acc-b", "acc-c"}
	_, err := b.ScoreAll(ctx, ids, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
