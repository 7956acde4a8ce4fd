// Package middleware applies the request throttle in front of the public
// vote route.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"demandstage/internal/ratelimit/models"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/httputil"
	"demandstage/pkg/requestcontext"
)

// BucketStore counts requests per key in a trailing window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.ThrottleResult, error)
}

// Throttle caps requests per client address. The throttle fails open: when
// the bucket store errors the request proceeds, because dropping votes over
// a Redis hiccup is worse than briefly losing the cap.
func Throttle(store BucketStore, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientIP := requestcontext.ClientIP(ctx)
			if clientIP == "" {
				clientIP = "unknown"
			}

			result, err := store.Allow(ctx, models.Key(clientIP), limit, window)
			if err != nil {
				logger.WarnContext(ctx, "throttle check failed, allowing request",
					"request_id", requestcontext.RequestID(ctx),
					"error", err.Error(),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "request rate exceeded, slow down"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
