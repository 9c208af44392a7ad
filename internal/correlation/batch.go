package correlation

import (
	"context"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// BatchScorer fans pairwise scoring out across a worker pool. Pairs are
// independent, so completion order is irrelevant; results land in a slice
// indexed by pair position so the output order is fixed by account ids, not
// by scheduling.
type BatchScorer struct {
	scorer  *Scorer
	cache   domain.CorrelationCache // optional write-through; nil disables
	workers int
	logger  *slog.Logger
}

// NewBatchScorer creates a BatchScorer. workers <= 0 selects GOMAXPROCS.
func NewBatchScorer(scorer *Scorer, cache domain.CorrelationCache, workers int, logger *slog.Logger) *BatchScorer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &BatchScorer{
		scorer:  scorer,
		cache:   cache,
		workers: workers,
		logger:  logger.With(slog.String("component", "batch_scorer")),
	}
}

// pair is one unordered account pair to score.
type pair struct {
	a, b string
}

// ScoreAll scores every unordered account pair and returns the results
// sorted by canonical pair key. Each pair is fully recomputed from the
// current trade sets; results are never patched incrementally. A pair whose
// scoring panics is dropped with a warning and does not abort the batch.
func (b *BatchScorer) ScoreAll(ctx context.Context, accountIDs []string, tradesByAccount map[string][]domain.Trade) ([]domain.CorrelationResult, error) {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)

	var pairs []pair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, pair{a: ids[i], b: ids[j]})
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	results := make([]domain.CorrelationResult, len(pairs))
	valid := make([]bool, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for idx, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.scoreOne(p, tradesByAccount[p.a], tradesByAccount[p.b])
			if err != nil {
				b.logger.Warn("pair scoring failed",
					slog.String("account_a", p.a),
					slog.String("account_b", p.b),
					slog.String("error", err.Error()),
				)
				return nil // isolate the failed pair, keep the batch going
			}
			results[idx] = res
			valid[idx] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.CorrelationResult, 0, len(results))
	for i, res := range results {
		if !valid[i] {
			continue
		}
		out = append(out, res)
		if b.cache != nil {
			if err := b.cache.SetResult(ctx, res); err != nil {
				b.logger.Warn("correlation cache write failed",
					slog.String("pair", res.PairKey()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return out, nil
}

// scoreOne wraps a single Score call and converts a panic into a compute
// error so one bad pair cannot take down the run.
func (b *BatchScorer) scoreOne(p pair, tradesA, tradesB []domain.Trade) (res domain.CorrelationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.ErrCompute
		}
	}()
	return b.scorer.Score(p.a, p.b, tradesA, tradesB), nil
}
