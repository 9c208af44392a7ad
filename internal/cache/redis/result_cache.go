package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// ResultCache implements domain.CorrelationCache using Redis hashes with
// JSON-serialized results.
//
// Key schema:
//
//	correlation:{a}:{b} - hash with field "data" containing JSON
//
// where a < b lexicographically, matching the canonical pair ordering.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.CorrelationCache = (*ResultCache)(nil)

// NewResultCache creates a ResultCache backed by the given Client. Entries
// expire after ttl so a stalled analysis loop cannot serve ancient scores.
func NewResultCache(c *Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{rdb: c.Underlying(), ttl: ttl}
}

func resultKey(pairKey string) string { return "correlation:" + pairKey }

// SetResult stores one scored pair with the configured TTL.
func (rc *ResultCache) SetResult(ctx context.Context, result domain.CorrelationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal correlation %s: %w", result.PairKey(), err)
	}

	key := resultKey(result.PairKey())

	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, rc.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set correlation %s: %w", result.PairKey(), err)
	}
	return nil
}

// GetResult retrieves the scored pair for two accounts in either order.
// It returns domain.ErrNotFound when the pair has not been cached.
func (rc *ResultCache) GetResult(ctx context.Context, accountA, accountB string) (domain.CorrelationResult, error) {
	a, b := domain.CanonicalPair(accountA, accountB)
	pairKey := a + ":" + b

	data, err := rc.rdb.HGet(ctx, resultKey(pairKey), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CorrelationResult{}, domain.ErrNotFound
		}
		return domain.CorrelationResult{}, fmt.Errorf("redis: get correlation %s: %w", pairKey, err)
	}

	var result domain.CorrelationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.CorrelationResult{}, fmt.Errorf("redis: unmarshal correlation %s: %w", pairKey, err)
	}
	return result, nil
}

// GetResults fetches many pairs in one round trip. Missing pairs are simply
// absent from the returned map.
func (rc *ResultCache) GetResults(ctx context.Context, pairKeys []string) (map[string]domain.CorrelationResult, error) {
	if len(pairKeys) == 0 {
		return map[string]domain.CorrelationResult{}, nil
	}

	pipe := rc.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(pairKeys))
	for i, pk := range pairKeys {
		cmds[i] = pipe.HGet(ctx, resultKey(pk), "data")
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get correlations: %w", err)
	}

	out := make(map[string]domain.CorrelationResult, len(pairKeys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis: get correlation %s: %w", pairKeys[i], err)
		}
		var result domain.CorrelationResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("redis: unmarshal correlation %s: %w", pairKeys[i], err)
		}
		out[result.PairKey()] = result
	}
	return out, nil
}
