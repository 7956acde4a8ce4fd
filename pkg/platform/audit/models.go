// Package audit captures the durable trail of intake and operator actions.
// Events are emitted from domain logic, buffered through a publisher, stored
// in a transactional outbox, and relayed to Kafka by the outbox worker.
package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Action    string
	Timestamp time.Time
	// Subject is the vote or event record the action concerns.
	Subject string
	// Actor is the operator who performed the action, empty for public
	// submissions.
	Actor string
	// RequestID correlates the event with the originating HTTP request.
	RequestID string
	Artist    string
	City      string
	// Detail carries the human-readable specifics, e.g. which identity
	// signal tripped a duplicate rejection.
	Detail string
}

// Audit actions recorded by the service.
const (
	ActionVoteAccepted            = "vote_accepted"
	ActionVoteFlagged             = "vote_flagged"
	ActionVoteRejectedDuplicate   = "vote_rejected_duplicate"
	ActionVoteRejectedRateLimited = "vote_rejected_rate_limited"
	ActionVoteDeleted             = "vote_deleted"
	ActionVoteFlagToggled         = "vote_flag_toggled"
	ActionEventVerified           = "event_verified"
	ActionEventDeleted            = "event_deleted"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
