// Package postgres implements the vote store over PostgreSQL. The partial
// unique indexes in the schema are the source of truth for the duplicate
// invariants; Insert translates their violations into scoped conflicts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"demandstage/internal/vote/models"
	"demandstage/pkg/platform/sentinel"
	txcontext "demandstage/pkg/platform/tx"
)

// Constraint names from the schema, used to scope 23505 violations.
const (
	deviceChoiceConstraint  = "votes_device_choice_key"
	networkChoiceConstraint = "votes_network_choice_key"
)

// Store persists votes in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed vote store.
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

// Insert persists a vote. A unique-violation on one of the identity indexes
// is the authoritative duplicate rejection and is returned as the matching
// scoped conflict.
func (s *Store) Insert(ctx context.Context, vote *models.Vote) error {
	if vote == nil {
		return fmt.Errorf("vote is required")
	}
	if vote.ID == uuid.Nil {
		vote.ID = uuid.New()
	}
	network := vote.NetworkSignal
	if network == "" {
		network = models.NetworkUnknown
	}

	query := `
		INSERT INTO votes (id, artist, city, device_id, ip_address, user_agent, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		vote.ID, vote.Artist, vote.City, vote.DeviceSignal, network,
		vote.UserAgent, vote.Flagged, vote.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case networkChoiceConstraint:
				return fmt.Errorf("insert vote: %w", models.ErrNetworkDuplicate)
			case deviceChoiceConstraint:
				return fmt.Errorf("insert vote: %w", models.ErrDeviceDuplicate)
			}
			return fmt.Errorf("insert vote: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// HasDeviceVoted reports whether the device already voted for the choice.
func (s *Store) HasDeviceVoted(ctx context.Context, deviceSignal, artist, city string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM votes WHERE device_id = $1 AND artist = $2 AND city = $3)`
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, deviceSignal, artist, city).Scan(&exists); err != nil {
		return false, fmt.Errorf("check device vote: %w", err)
	}
	return exists, nil
}

// HasNetworkVoted reports whether the network already voted for the choice.
// The unknown sentinel never matches.
func (s *Store) HasNetworkVoted(ctx context.Context, networkSignal, artist, city string) (bool, error) {
	if networkSignal == "" || networkSignal == models.NetworkUnknown {
		return false, nil
	}
	query := `SELECT EXISTS (SELECT 1 FROM votes WHERE ip_address = $1 AND artist = $2 AND city = $3)`
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, networkSignal, artist, city).Scan(&exists); err != nil {
		return false, fmt.Errorf("check network vote: %w", err)
	}
	return exists, nil
}

// CountByDeviceSince counts the device's votes created at or after since.
func (s *Store) CountByDeviceSince(ctx context.Context, deviceSignal string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM votes WHERE device_id = $1 AND created_at >= $2`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, deviceSignal, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count device votes: %w", err)
	}
	return count, nil
}

// CountByNetworkSince counts the network's votes created at or after since.
// Returns zero for the unknown sentinel.
func (s *Store) CountByNetworkSince(ctx context.Context, networkSignal string, since time.Time) (int, error) {
	if networkSignal == "" || networkSignal == models.NetworkUnknown {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM votes WHERE ip_address = $1 AND created_at >= $2`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, networkSignal, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count network votes: %w", err)
	}
	return count, nil
}

// Get returns one vote by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Vote, error) {
	query := `
		SELECT id, artist, city, device_id, ip_address, user_agent, flagged, created_at
		FROM votes WHERE id = $1
	`
	vote, err := scanVote(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get vote: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return vote, nil
}

// List returns all votes, newest first.
func (s *Store) List(ctx context.Context) ([]*models.Vote, error) {
	query := `
		SELECT id, artist, city, device_id, ip_address, user_agent, flagged, created_at
		FROM votes ORDER BY created_at DESC
	`
	return s.queryVotes(ctx, query)
}

// ListFlagged returns flagged votes, newest first.
func (s *Store) ListFlagged(ctx context.Context) ([]*models.Vote, error) {
	query := `
		SELECT id, artist, city, device_id, ip_address, user_agent, flagged, created_at
		FROM votes WHERE flagged ORDER BY created_at DESC
	`
	return s.queryVotes(ctx, query)
}

// ListSuspiciousGroups returns identity signals with at least minCount votes,
// largest groups first. Unknown network signals are excluded.
func (s *Store) ListSuspiciousGroups(ctx context.Context, minCount int) ([]models.SuspiciousGroup, error) {
	query := `
		SELECT kind, signal, votes FROM (
			SELECT 'device' AS kind, device_id AS signal, COUNT(*) AS votes
			FROM votes GROUP BY device_id
			UNION ALL
			SELECT 'network' AS kind, ip_address AS signal, COUNT(*) AS votes
			FROM votes WHERE ip_address <> 'unknown' GROUP BY ip_address
		) grouped
		WHERE votes >= $1
		ORDER BY votes DESC, signal
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, minCount)
	if err != nil {
		return nil, fmt.Errorf("list suspicious groups: %w", err)
	}
	defer rows.Close()

	var groups []models.SuspiciousGroup
	for rows.Next() {
		var g models.SuspiciousGroup
		if err := rows.Scan(&g.SignalKind, &g.Signal, &g.Count); err != nil {
			return nil, fmt.Errorf("scan suspicious group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suspicious groups: %w", err)
	}
	return groups, nil
}

// Delete removes one vote by ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM votes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete vote: %w", sentinel.ErrNotFound)
	}
	return nil
}

// SetFlagged sets the flagged bit on one vote.
func (s *Store) SetFlagged(ctx context.Context, id uuid.UUID, flagged bool) error {
	res, err := s.execer(ctx).ExecContext(ctx, `UPDATE votes SET flagged = $2 WHERE id = $1`, id, flagged)
	if err != nil {
		return fmt.Errorf("flag vote: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("flag vote: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("flag vote: %w", sentinel.ErrNotFound)
	}
	return nil
}

// CountByChoice counts live votes for one (artist, city) pair.
func (s *Store) CountByChoice(ctx context.Context, artist, city string) (int, error) {
	query := `SELECT COUNT(*) FROM votes WHERE artist = $1 AND city = $2`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, artist, city).Scan(&count); err != nil {
		return 0, fmt.Errorf("count votes for choice: %w", err)
	}
	return count, nil
}

// DeleteByChoice removes every vote for one (artist, city) pair.
func (s *Store) DeleteByChoice(ctx context.Context, artist, city string) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM votes WHERE artist = $1 AND city = $2`, artist, city)
	if err != nil {
		return 0, fmt.Errorf("delete votes for choice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete votes for choice: %w", err)
	}
	return int(affected), nil
}

func (s *Store) queryVotes(ctx context.Context, query string, args ...any) ([]*models.Vote, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.Artist, &v.City, &v.DeviceSignal, &v.NetworkSignal,
			&v.UserAgent, &v.Flagged, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

func scanVote(row *sql.Row) (*models.Vote, error) {
	var v models.Vote
	if err := row.Scan(&v.ID, &v.Artist, &v.City, &v.DeviceSignal, &v.NetworkSignal,
		&v.UserAgent, &v.Flagged, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
