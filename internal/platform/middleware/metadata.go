package middleware

import (
	"net/http"
	"strings"

	"demandstage/pkg/requestcontext"
)

// NetworkUnknown is the sentinel used when no forwarding header identifies
// the caller. It is excluded from every network-signal comparison downstream.
const NetworkUnknown = "unknown"

// forwardHeaders is the fixed precedence order for the observed network
// address. X-Forwarded-For may carry a chain; only the first entry is the
// original client.
var forwardHeaders = []string{"X-Forwarded-For", "CF-Connecting-IP", "X-Real-IP"}

// ClientMetadata extracts the caller's network address and User-Agent and
// stores them in the context for handlers and services. Apply early in the
// chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithClientIP(ctx, ClientIPFromRequest(r))
		ctx = requestcontext.WithUserAgent(ctx, r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest resolves the caller's network address from forwarding
// headers in fixed precedence order, falling back to the unknown sentinel.
// RemoteAddr is deliberately not used: behind the expected deployment every
// direct peer is the load balancer, and treating its address as an identity
// signal would collapse all callers into one.
func ClientIPFromRequest(r *http.Request) string {
	for _, header := range forwardHeaders {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}
		if idx := strings.Index(value, ","); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}
		if value != "" {
			return value
		}
	}
	return NetworkUnknown
}
