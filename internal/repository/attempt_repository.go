package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// AttemptRepository counts delivery attempts of asynchronous ingestion tasks.
type AttemptRepository interface {
	// Increment bumps the counter for taskID and returns the new value.
	Increment(ctx context.Context, taskID string) (int64, error)
	// Reset forgets taskID.
	Reset(ctx context.Context, taskID string) error
}

type redisAttemptRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewAttemptRepository creates a Redis-backed AttemptRepository. Counters
// expire after ttl so abandoned tasks do not accumulate.
func NewAttemptRepository(redisClient *redis.Client, ttl time.Duration) AttemptRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisAttemptRepository{redisClient: redisClient, ttl: ttl}
}

func attemptKey(taskID string) string {
	return fmt.Sprintf("ingest:attempts:%s", taskID)
}

func (r *redisAttemptRepository) Increment(ctx context.Context, taskID string) (int64, error) {
	key := attemptKey(taskID)
	pipe := r.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment attempts for %s: %w", taskID, err)
	}
	return incr.Val(), nil
}

func (r *redisAttemptRepository) Reset(ctx context.Context, taskID string) error {
	if err := r.redisClient.Del(ctx, attemptKey(taskID)).Err(); err != nil {
		return fmt.Errorf("reset attempts for %s: %w", taskID, err)
	}
	return nil
}
