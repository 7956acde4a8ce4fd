package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"demandstage/internal/ratelimit/models"
)

// RedisBucketStore implements the sliding window over a Redis sorted set per
// key, scored by nanosecond timestamps, so all instances share one counter.
type RedisBucketStore struct {
	client redis.Cmdable
}

// NewRedisBucketStore creates a Redis-backed bucket store.
func NewRedisBucketStore(client redis.Cmdable) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

// Allow records one request against the key and reports whether it fits the
// limit for the trailing window. The trim, add, and count run in one MULTI
// block so concurrent callers cannot slip past the limit between a read and
// a write.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, windowSize time.Duration) (*models.ThrottleResult, error) {
	now := time.Now()
	cutoff := now.Add(-windowSize)
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, windowSize)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("throttle window update: %w", err)
	}

	count := int(countCmd.Val())
	if count > limit {
		// Take the rejected entry back out; if the removal is lost it still
		// ages out of the window.
		_ = s.client.ZRem(ctx, key, member).Err()

		resetAt := now.Add(windowSize)
		if oldest := oldestCmd.Val(); len(oldest) > 0 {
			resetAt = time.Unix(0, int64(oldest[0].Score)).Add(windowSize)
		}
		return &models.ThrottleResult{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: int(time.Until(resetAt).Seconds()) + 1,
		}, nil
	}

	return &models.ThrottleResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
		ResetAt:   now.Add(windowSize),
	}, nil
}

// Reset clears the counter for a key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("throttle reset: %w", err)
	}
	return nil
}
