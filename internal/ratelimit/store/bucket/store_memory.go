// Package bucket implements sliding-window request counters. The in-memory
// store serves single-instance deployments and tests; the Redis store shares
// the window across instances.
package bucket

import (
	"context"
	"sync"
	"time"

	"demandstage/internal/ratelimit/models"
)

// InMemoryBucketStore tracks request timestamps per key. A sliding window
// avoids the burst-at-the-boundary artifact of fixed windows.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*window
}

type window struct {
	timestamps []time.Time
}

// NewInMemoryBucketStore creates an empty bucket store.
func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{buckets: make(map[string]*window)}
}

// Allow records one request against the key and reports whether it fits the
// limit for the trailing window.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, windowSize time.Duration) (*models.ThrottleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w := s.buckets[key]
	if w == nil {
		w = &window{}
		s.buckets[key] = w
	}
	w.expire(now.Add(-windowSize))

	if len(w.timestamps) >= limit {
		resetAt := w.timestamps[0].Add(windowSize)
		retry := int(time.Until(resetAt).Seconds()) + 1
		return &models.ThrottleResult{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retry,
		}, nil
	}

	w.timestamps = append(w.timestamps, now)
	return &models.ThrottleResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.timestamps),
		ResetAt:   w.timestamps[0].Add(windowSize),
	}, nil
}

// Reset clears the counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

func (w *window) expire(cutoff time.Time) {
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
