// Package postgres implements the event store over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"demandstage/internal/event/models"
	"demandstage/pkg/platform/sentinel"
	txcontext "demandstage/pkg/platform/tx"
)

// Store persists events in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store.
func NewPostgres(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if dbTx, ok := txcontext.From(ctx); ok {
		return dbTx
	}
	return s.db
}

// Insert persists an event. It participates in a surrounding transaction
// when one is carried in the context.
func (s *Store) Insert(ctx context.Context, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO events (id, artist, city, venue, event_date, sponsors, total_votes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID, event.Artist, event.City, event.Venue, event.EventDate,
		pq.Array(event.Sponsors), event.TotalVotes, event.Verified, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Get returns one event by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	query := selectEvents + ` WHERE id = $1`
	row := s.execer(ctx).QueryRowContext(ctx, query, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get event: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// List returns all events, soonest event date first.
func (s *Store) List(ctx context.Context) ([]*models.Event, error) {
	query := selectEvents + ` ORDER BY event_date, created_at`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Delete removes one event by ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete event: %w", sentinel.ErrNotFound)
	}
	return nil
}

const selectEvents = `
	SELECT id, artist, city, venue, event_date, sponsors, total_votes, verified, created_at
	FROM events
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.Artist, &e.City, &e.Venue, &e.EventDate,
		pq.Array(&e.Sponsors), &e.TotalVotes, &e.Verified, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
