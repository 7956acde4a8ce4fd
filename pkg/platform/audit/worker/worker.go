// Package worker relays audit events from the outbox table to Kafka. Running
// it is optional; with no brokers configured events simply accumulate in the
// outbox for later replay.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Worker polls the outbox and publishes pending rows.
type Worker struct {
	db     *sql.DB
	client *kgo.Client
	topic  string
	logger *slog.Logger

	interval  time.Duration
	batchSize int
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		w.interval = d
	}
}

// WithBatchSize overrides how many rows one poll publishes.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		w.batchSize = n
	}
}

// New creates an outbox worker publishing to the given topic.
func New(db *sql.DB, client *kgo.Client, topic string, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		db:        db,
		client:    client,
		topic:     topic,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewClient builds a Kafka client for the worker.
func NewClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Run polls until ctx is cancelled. Publish failures leave rows unpublished;
// the next poll retries them, so delivery is at-least-once.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.PublishPending(ctx); err != nil {
				w.logger.Warn("outbox publish cycle failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id      string
	key     string
	payload []byte
}

// PublishPending relays one batch of unpublished rows. Exported for
// integration tests, which drive polling themselves.
func (w *Worker) PublishPending(ctx context.Context) error {
	dbTx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	// SKIP LOCKED lets multiple worker instances share the outbox without
	// double-publishing inside one cycle.
	rows, err := dbTx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, w.batchSize)
	if err != nil {
		return fmt.Errorf("select outbox rows: %w", err)
	}

	var pending []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.key, &row.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	if len(pending) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(pending))
	ids := make([]string, 0, len(pending))
	for _, row := range pending {
		records = append(records, &kgo.Record{
			Topic: w.topic,
			Key:   []byte(row.key),
			Value: row.payload,
		})
		ids = append(ids, row.id)
	}

	if err := w.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit records: %w", err)
	}

	query := `UPDATE audit_outbox SET published_at = now() WHERE id = ANY($1)`
	if _, err := dbTx.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}

	w.logger.Debug("published audit events", "count", len(pending))
	return nil
}
