// Package service implements the event lifecycle, centered on the
// verification transition that turns accumulated demand into a confirmed
// show.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	eventMetrics "demandstage/internal/event/metrics"
	"demandstage/internal/event/models"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/audit"
	"demandstage/pkg/platform/sentinel"
	txcontext "demandstage/pkg/platform/tx"
	"demandstage/pkg/requestcontext"
)

// EventStore persists verified events.
type EventStore interface {
	Insert(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context) ([]*models.Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// VoteStore is the slice of the vote store the transition needs: the demand
// snapshot and the sweep.
type VoteStore interface {
	CountByChoice(ctx context.Context, artist, city string) (int, error)
	DeleteByChoice(ctx context.Context, artist, city string) (int, error)
}

// AuditPublisher records event lifecycle actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates event verification, listing and deletion.
type Service struct {
	events  EventStore
	votes   VoteStore
	runner  txcontext.Runner
	logger  *slog.Logger
	metrics *eventMetrics.Metrics
	auditor AuditPublisher
	tracer  trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the event metrics.
func WithMetrics(m *eventMetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// New creates the event service. The runner must span both stores so the
// verification transition commits atomically.
func New(events EventStore, votes VoteStore, runner txcontext.Runner, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if votes == nil {
		return nil, errors.New("vote store is required")
	}
	if runner == nil {
		return nil, errors.New("tx runner is required")
	}
	svc := &Service{
		events: events,
		votes:  votes,
		runner: runner,
		logger: slog.Default(),
		tracer: otel.Tracer("demandstage/internal/event"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Verify snapshots the pair's current vote count, inserts the verified
// event, and deletes the pair's votes in one atomic unit. After it commits
// the pair's tally starts over at zero; the snapshot on the event is
// permanent.
func (s *Service) Verify(ctx context.Context, req models.VerifyRequest) (*models.Event, error) {
	ctx, span := s.tracer.Start(ctx, "event.verify")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("event.artist", req.Artist),
		attribute.String("event.city", req.City),
	)

	event := &models.Event{
		ID:        uuid.New(),
		Artist:    req.Artist,
		City:      req.City,
		Venue:     req.Venue,
		EventDate: req.EventDate,
		Sponsors:  req.Sponsors,
		Verified:  true,
		CreatedAt: requestcontext.Now(ctx),
	}
	if event.Sponsors == nil {
		event.Sponsors = []string{}
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		count, err := s.votes.CountByChoice(ctx, req.Artist, req.City)
		if err != nil {
			return err
		}
		event.TotalVotes = count

		if err := s.events.Insert(ctx, event); err != nil {
			return err
		}
		if _, err := s.votes.DeleteByChoice(ctx, req.Artist, req.City); err != nil {
			return err
		}
		// Emitted inside the transaction: the outbox row commits or rolls
		// back with the event itself.
		s.emit(ctx, audit.Event{
			Action:  audit.ActionEventVerified,
			Subject: event.ID.String(),
			Actor:   requestcontext.AdminSubject(ctx),
			Artist:  event.Artist,
			City:    event.City,
		})
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "event verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verify event")
	}

	if s.metrics != nil {
		s.metrics.Verified.Inc()
		s.metrics.SnapshotVotes.Observe(float64(event.TotalVotes))
	}
	span.SetAttributes(attribute.Int("event.total_votes", event.TotalVotes))
	return event, nil
}

// List returns all events.
func (s *Service) List(ctx context.Context) ([]*models.Event, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list events")
	}
	return events, nil
}

// Delete removes one event.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	event, err := s.events.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load event")
	}

	if err := s.events.Delete(ctx, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete event")
	}

	if s.metrics != nil {
		s.metrics.Deleted.Inc()
	}
	s.emit(ctx, audit.Event{
		Action:  audit.ActionEventDeleted,
		Subject: id.String(),
		Actor:   requestcontext.AdminSubject(ctx),
		Artist:  event.Artist,
		City:    event.City,
	})
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err.Error())
	}
}
