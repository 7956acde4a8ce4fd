// Package postgres implements the audit store using the transactional outbox
// pattern. Events are written to the outbox table in the same transaction as
// the domain mutation they describe; the outbox worker relays them to Kafka.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"demandstage/pkg/platform/audit"
	txcontext "demandstage/pkg/platform/tx"
)

// Store persists audit events into the audit_outbox table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if dbTx, ok := txcontext.From(ctx); ok {
		return dbTx
	}
	return s.db
}

// outboxPayload is the JSON structure relayed to Kafka. Field names match
// audit.Event for symmetric decoding on the consumer side.
type outboxPayload struct {
	ID        string `json:"ID"`
	Action    string `json:"Action"`
	Timestamp string `json:"Timestamp"`
	Subject   string `json:"Subject,omitempty"`
	Actor     string `json:"Actor,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
	Artist    string `json:"Artist,omitempty"`
	City      string `json:"City,omitempty"`
	Detail    string `json:"Detail,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	payload := outboxPayload{
		ID:        eventID.String(),
		Action:    event.Action,
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Actor:     event.Actor,
		RequestID: event.RequestID,
		Artist:    event.Artist,
		City:      event.City,
		Detail:    event.Detail,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.Subject != "" {
		aggregateType = "vote"
		aggregateID = event.Subject
	}

	query := `
		INSERT INTO audit_outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		eventID, aggregateType, aggregateID, event.Action, payloadBytes, event.Timestamp,
	); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
