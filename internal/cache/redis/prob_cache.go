package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parlaygames/parlay/internal/domain"
)

// ProbCache implements domain.ProbCache using Redis hashes. Each market's
// live probability is stored at key "prob:{marketID}" with fields "prob" and
// "ts" (Unix nanosecond timestamp), so price reads never touch PostgreSQL.
type ProbCache struct {
	rdb *redis.Client
}

var _ domain.ProbCache = (*ProbCache)(nil)

// NewProbCache creates a ProbCache backed by the given Client.
func NewProbCache(c *Client) *ProbCache {
	return &ProbCache{rdb: c.Underlying()}
}

func probKey(marketID string) string {
	return "prob:" + marketID
}

// SetProbability stores the latest probability and timestamp for a market.
func (pc *ProbCache) SetProbability(ctx context.Context, marketID string, prob float64, ts time.Time) error {
	fields := map[string]interface{}{
		"prob": strconv.FormatFloat(prob, 'f', -1, 64),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, probKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set probability %s: %w", marketID, err)
	}
	return nil
}

// GetProbability retrieves the latest probability and timestamp for a
// market. It returns domain.ErrNotFound when the key does not exist.
func (pc *ProbCache) GetProbability(ctx context.Context, marketID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, probKey(marketID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get probability %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	probStr, ok := vals["prob"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	prob, err := strconv.ParseFloat(probStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse probability %s: %w", marketID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}

	return prob, time.Unix(0, tsNano), nil
}

// GetProbabilities retrieves the latest probabilities for multiple markets
// using a pipeline. Markets whose keys do not exist are omitted from the
// result map.
func (pc *ProbCache) GetProbabilities(ctx context.Context, marketIDs []string) (map[string]float64, error) {
	if len(marketIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(marketIDs))
	for _, id := range marketIDs {
		cmds[id] = pipe.HGetAll(ctx, probKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get probabilities pipeline: %w", err)
	}

	result := make(map[string]float64, len(marketIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		probStr, ok := vals["prob"]
		if !ok {
			continue
		}
		prob, err := strconv.ParseFloat(probStr, 64)
		if err != nil {
			continue
		}
		result[id] = prob
	}

	return result, nil
}
