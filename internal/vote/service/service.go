// Package service implements the vote intake pipeline: request validation,
// duplicate guard, rate limiting and the authoritative insert.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"demandstage/internal/platform/config"
	voteMetrics "demandstage/internal/vote/metrics"
	"demandstage/internal/vote/models"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/audit"
	"demandstage/pkg/requestcontext"
)

// User-facing rejection messages. The network variant is distinguishable
// from the device variant; callers rely on that.
const (
	msgNetworkDuplicate = "a vote for this artist and city was already cast from your network"
	msgDeviceDuplicate  = "this device has already voted for this artist and city"
	msgRateLimited      = "too many recent votes from this device or network, try again later"
)

// Store is the persistence surface the intake pipeline needs.
type Store interface {
	Insert(ctx context.Context, vote *models.Vote) error
	HasDeviceVoted(ctx context.Context, deviceSignal, artist, city string) (bool, error)
	HasNetworkVoted(ctx context.Context, networkSignal, artist, city string) (bool, error)
	CountByDeviceSince(ctx context.Context, deviceSignal string, since time.Time) (int, error)
	CountByNetworkSince(ctx context.Context, networkSignal string, since time.Time) (int, error)
}

// AuditPublisher records intake outcomes on the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates vote intake. It holds no cross-request state; under
// concurrency the storage constraints are the arbiter, not a process lock.
type Service struct {
	store   Store
	cfg     config.VoteConfig
	logger  *slog.Logger
	metrics *voteMetrics.Metrics
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

// WithMetrics sets the intake outcome metrics.
func WithMetrics(m *voteMetrics.Metrics) Option {
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

// New creates the intake service.
func New(store Store, cfg config.VoteConfig, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("vote store is required")
	}
	svc := &Service{
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		tracer: otel.Tracer("demandstage/internal/vote"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit runs one submission through the pipeline. Check order is part of
// the contract: validation, then duplicate guard, then rate limiter, then
// insert. The guard is a fast path that improves messages; the insert's
// uniqueness constraints are the source of truth.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (*models.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "vote.intake")
	defer span.End()

	sub.Normalize()
	if err := sub.Validate(); err != nil {
		s.metrics.Record(voteMetrics.OutcomeInvalid)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("vote.artist", sub.Artist),
		attribute.String("vote.city", sub.City),
	)

	network := requestcontext.ClientIP(ctx)
	if network == "" {
		network = models.NetworkUnknown
	}
	now := requestcontext.Now(ctx)

	if err := s.checkDuplicate(ctx, sub, network); err != nil {
		return nil, err
	}

	flagged, err := s.checkRate(ctx, sub, network, now)
	if err != nil {
		return nil, err
	}

	vote := &models.Vote{
		ID:            uuid.New(),
		Artist:        sub.Artist,
		City:          sub.City,
		DeviceSignal:  sub.DeviceID,
		NetworkSignal: network,
		UserAgent:     requestcontext.UserAgent(ctx),
		Flagged:       flagged,
		CreatedAt:     now,
	}
	if err := s.store.Insert(ctx, vote); err != nil {
		return nil, s.insertFailure(ctx, sub, err)
	}

	outcome := voteMetrics.OutcomeAccepted
	action := audit.ActionVoteAccepted
	if flagged {
		outcome = voteMetrics.OutcomeFlagged
		action = audit.ActionVoteFlagged
	}
	s.metrics.Record(outcome)
	s.emit(ctx, audit.Event{
		Action:  action,
		Subject: vote.ID.String(),
		Artist:  vote.Artist,
		City:    vote.City,
	})
	span.SetAttributes(attribute.Bool("vote.flagged", flagged))

	return &models.Receipt{Success: true, Flagged: flagged}, nil
}

// HasVoted answers whether the device already voted for the choice.
func (s *Service) HasVoted(ctx context.Context, deviceSignal, artist, city string) (*models.VoteStatus, error) {
	if deviceSignal == "" || artist == "" || city == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "device_id, artist and city are required")
	}
	voted, err := s.store.HasDeviceVoted(ctx, deviceSignal, artist, city)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check vote status")
	}
	return &models.VoteStatus{HasVoted: voted}, nil
}

// checkDuplicate runs both identity lookups in parallel but evaluates the
// network verdict first so its more specific message wins.
func (s *Service) checkDuplicate(ctx context.Context, sub models.Submission, network string) error {
	var networkVoted, deviceVoted bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		voted, err := s.store.HasNetworkVoted(gctx, network, sub.Artist, sub.City)
		networkVoted = voted
		return err
	})
	g.Go(func() error {
		voted, err := s.store.HasDeviceVoted(gctx, sub.DeviceID, sub.Artist, sub.City)
		deviceVoted = voted
		return err
	})
	if err := g.Wait(); err != nil {
		s.metrics.Record(voteMetrics.OutcomeStorageFailure)
		return dErrors.Wrap(err, dErrors.CodeInternal, "duplicate check")
	}

	switch {
	case networkVoted:
		return s.rejectDuplicate(ctx, sub, models.SignalNetwork, msgNetworkDuplicate)
	case deviceVoted:
		return s.rejectDuplicate(ctx, sub, models.SignalDevice, msgDeviceDuplicate)
	}
	return nil
}

// checkRate counts the identity's recent committed votes and classifies the
// request. The stricter of the two signals decides.
func (s *Service) checkRate(ctx context.Context, sub models.Submission, network string, now time.Time) (bool, error) {
	since := now.Add(-s.cfg.RateWindow)

	var deviceCount, networkCount int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, err := s.store.CountByDeviceSince(gctx, sub.DeviceID, since)
		deviceCount = count
		return err
	})
	g.Go(func() error {
		count, err := s.store.CountByNetworkSince(gctx, network, since)
		networkCount = count
		return err
	})
	if err := g.Wait(); err != nil {
		s.metrics.Record(voteMetrics.OutcomeStorageFailure)
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "rate count")
	}

	// The attempt itself counts: with a soft threshold of 5 the fifth
	// in-window vote is flagged, and the tenth is blocked.
	recent := max(deviceCount, networkCount) + 1
	if recent >= s.cfg.HardThreshold() {
		s.metrics.Record(voteMetrics.OutcomeRateLimited)
		s.emit(ctx, audit.Event{
			Action: audit.ActionVoteRejectedRateLimited,
			Artist: sub.Artist,
			City:   sub.City,
			Detail: "recent vote count reached the hard threshold",
		})
		return false, dErrors.New(dErrors.CodeRateLimited, msgRateLimited)
	}
	return recent >= s.cfg.SoftThreshold, nil
}

func (s *Service) rejectDuplicate(ctx context.Context, sub models.Submission, signalKind, msg string) error {
	s.metrics.Record(voteMetrics.OutcomeDuplicate)
	s.emit(ctx, audit.Event{
		Action: audit.ActionVoteRejectedDuplicate,
		Artist: sub.Artist,
		City:   sub.City,
		Detail: signalKind + " signal already voted",
	})
	return dErrors.New(dErrors.CodeConflict, msg)
}

// insertFailure maps storage errors after the insert attempt. A uniqueness
// violation here means a concurrent request won the race; it is reported as
// the same duplicate outcome the guard would have produced.
func (s *Service) insertFailure(ctx context.Context, sub models.Submission, err error) error {
	switch {
	case errors.Is(err, models.ErrNetworkDuplicate):
		return s.rejectDuplicate(ctx, sub, models.SignalNetwork, msgNetworkDuplicate)
	case errors.Is(err, models.ErrDeviceDuplicate):
		return s.rejectDuplicate(ctx, sub, models.SignalDevice, msgDeviceDuplicate)
	}
	s.metrics.Record(voteMetrics.OutcomeStorageFailure)
	s.logger.ErrorContext(ctx, "vote insert failed",
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "persist vote")
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
