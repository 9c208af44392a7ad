package domain

import (
	"context"
	"time"
)

// CorrelationCache caches scored pairs so unchanged pairs can be skipped
// between analysis runs.
type CorrelationCache interface {
	SetResult(ctx context.Context, result CorrelationResult) error
	GetResult(ctx context.Context, accountA, accountB string) (CorrelationResult, error)
	GetResults(ctx context.Context, pairKeys []string) (map[string]CorrelationResult, error)
}

// LockManager provides distributed locks so only one instance runs an
// analysis at a time.
type LockManager interface {
	// Acquire attempts to take the lock; it returns a release token or
	// ErrLockHeld when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

// RateLimiter bounds request rates per key, shared across instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is one durable message read from the signal bus.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the pub/sub fabric that carries alert events to the websocket
// hub and any other live consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}
