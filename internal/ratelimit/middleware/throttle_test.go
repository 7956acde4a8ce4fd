package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandstage/internal/ratelimit/models"
	"demandstage/internal/ratelimit/store/bucket"
	"demandstage/pkg/requestcontext"
)

func throttledHandler(limit int) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Throttle(bucket.NewInMemoryBucketStore(), limit, time.Minute, logger)(next)
}

func doRequest(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/votes", nil)
	req = req.WithContext(requestcontext.WithClientIP(req.Context(), ip))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestThrottle(t *testing.T) {
	t.Run("requests under the cap pass with rate headers", func(t *testing.T) {
		h := throttledHandler(2)

		rec := doRequest(h, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("the request over the cap gets 429 and Retry-After", func(t *testing.T) {
		h := throttledHandler(2)

		doRequest(h, "10.0.0.1")
		doRequest(h, "10.0.0.1")
		rec := doRequest(h, "10.0.0.1")

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("addresses are throttled independently", func(t *testing.T) {
		h := throttledHandler(1)

		doRequest(h, "10.0.0.1")
		rec := doRequest(h, "10.0.0.2")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("a failing store lets requests through", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		h := Throttle(failingBuckets{}, 1, time.Minute, logger)(next)

		rec := doRequest(h, "10.0.0.1")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

type failingBuckets struct{}

func (failingBuckets) Allow(context.Context, string, int, time.Duration) (*models.ThrottleResult, error) {
	return nil, errors.New("redis down")
}
