package middleware

import (
	"net/http"
	"time"

	"demandstage/pkg/requestcontext"
)

// RequestTime captures the current time at the start of the request so every
// store read and write within the request observes the same "now". The
// duplicate-guard and rate-limit queries of one submission must not disagree
// about the window boundary.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
