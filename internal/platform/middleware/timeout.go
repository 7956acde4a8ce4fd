package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds request handling. A caller abort or timeout before the vote
// insert commits leaves no partial row; the insert is the only mutating step
// and is atomic on its own.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
