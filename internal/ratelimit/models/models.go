// Package models holds the request-throttle types. The throttle caps raw
// HTTP traffic per client address; it is separate from the vote-policy rate
// limiter, which counts committed vote rows.
package models

import "time"

// ThrottleResult is the outcome of one request-throttle check.
type ThrottleResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, set when not allowed
}

// Key builds the bucket key for a client address.
func Key(clientIP string) string {
	return "throttle:ip:" + clientIP
}
