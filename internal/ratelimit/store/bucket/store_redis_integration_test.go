//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"demandstage/internal/ratelimit/models"
	"demandstage/internal/ratelimit/store/bucket"
	"demandstage/pkg/testutil/containers"
)

type RedisBucketSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
}

func TestRedisBucketSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketSuite))
}

func (s *RedisBucketSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = bucket.NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketSuite) TestAllowUpToLimit() {
	ctx := context.Background()
	key := models.Key("203.0.113.7")

	for i := 0; i < 3; i++ {
		result, err := s.store.Allow(ctx, key, 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(3, result.Limit)
		s.Equal(3-i-1, result.Remaining)
	}

	result, err := s.store.Allow(ctx, key, 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Zero(result.Remaining)
	s.Positive(result.RetryAfter)
	s.False(result.ResetAt.IsZero())
}

func (s *RedisBucketSuite) TestKeysAreIndependent() {
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := s.store.Allow(ctx, models.Key("203.0.113.7"), 2, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
	}

	result, err := s.store.Allow(ctx, models.Key("198.51.100.9"), 2, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed, "a fresh key should have its own window")
}

func (s *RedisBucketSuite) TestWindowSlides() {
	ctx := context.Background()
	key := models.Key("203.0.113.7")
	window := 500 * time.Millisecond

	for i := 0; i < 2; i++ {
		result, err := s.store.Allow(ctx, key, 2, window)
		s.Require().NoError(err)
		s.True(result.Allowed)
	}

	result, err := s.store.Allow(ctx, key, 2, window)
	s.Require().NoError(err)
	s.False(result.Allowed)

	time.Sleep(window + 100*time.Millisecond)

	result, err = s.store.Allow(ctx, key, 2, window)
	s.Require().NoError(err)
	s.True(result.Allowed, "expired entries should fall out of the window")
}

func (s *RedisBucketSuite) TestReset() {
	ctx := context.Background()
	key := models.Key("203.0.113.7")

	for i := 0; i < 2; i++ {
		_, err := s.store.Allow(ctx, key, 2, time.Minute)
		s.Require().NoError(err)
	}

	s.Require().NoError(s.store.Reset(ctx, key))

	result, err := s.store.Allow(ctx, key, 2, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(1, result.Remaining)
}

// TestConcurrentAllow races requests for one key: the MULTI block serializes
// the add-and-count, so exactly 'limit' requests get through.
func (s *RedisBucketSuite) TestConcurrentAllow() {
	ctx := context.Background()
	key := models.Key("203.0.113.7")
	limit := 10
	const goroutines = 50

	var wg sync.WaitGroup
	var allowed atomic.Int32
	var denied atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result, err := s.store.Allow(ctx, key, limit, time.Minute)
			s.Require().NoError(err)
			if result.Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(limit), allowed.Load(), "exactly %d requests should be allowed", limit)
	s.Equal(int32(goroutines-limit), denied.Load())
}
