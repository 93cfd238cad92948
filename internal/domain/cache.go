package domain

import (
	"context"
	"time"
)

// ProbCache provides fast access to live market probabilities so that reads
// never touch the primary store.
type ProbCache interface {
	SetProbability(ctx context.Context, marketID string, prob float64, ts time.Time) error
	GetProbability(ctx context.Context, marketID string) (float64, time.Time, error)
	GetProbabilities(ctx context.Context, marketIDs []string) (map[string]float64, error)
}

// MarketCache provides fast market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. Trades and settlement serialize
// per market through it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for probability ticks,
// activity events, and resolution broadcasts.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
