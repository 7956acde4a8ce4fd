// Package service implements operator review of the live vote set: flagged
// listings, suspicious clusters, deletion and flag toggling.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	voteModels "demandstage/internal/vote/models"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/audit"
	"demandstage/pkg/platform/sentinel"
	"demandstage/pkg/requestcontext"
)

// SuspiciousMinVotes is the cluster size at which an identity signal is
// surfaced for review.
const SuspiciousMinVotes = 3

// Store is the slice of the vote store moderation needs.
type Store interface {
	List(ctx context.Context) ([]*voteModels.Vote, error)
	ListFlagged(ctx context.Context) ([]*voteModels.Vote, error)
	ListSuspiciousGroups(ctx context.Context, minCount int) ([]voteModels.SuspiciousGroup, error)
	Get(ctx context.Context, id uuid.UUID) (*voteModels.Vote, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetFlagged(ctx context.Context, id uuid.UUID, flagged bool) error
}

// AuditPublisher records operator actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service exposes the moderation operations.
type Service struct {
	store   Store
	logger  *slog.Logger
	auditor AuditPublisher
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// New creates the moderation service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("vote store is required")
	}
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Votes lists the live votes, optionally only flagged ones.
func (s *Service) Votes(ctx context.Context, flaggedOnly bool) ([]*voteModels.Vote, error) {
	var (
		votes []*voteModels.Vote
		err   error
	)
	if flaggedOnly {
		votes, err = s.store.ListFlagged(ctx)
	} else {
		votes, err = s.store.List(ctx)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list votes")
	}
	return votes, nil
}

// Suspicious returns identity signals with SuspiciousMinVotes or more votes.
func (s *Service) Suspicious(ctx context.Context) ([]voteModels.SuspiciousGroup, error) {
	groups, err := s.store.ListSuspiciousGroups(ctx, SuspiciousMinVotes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list suspicious groups")
	}
	return groups, nil
}

// Delete removes one vote by operator decision.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	vote, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete vote")
	}
	s.emit(ctx, audit.Event{
		Action:  audit.ActionVoteDeleted,
		Subject: id.String(),
		Actor:   requestcontext.AdminSubject(ctx),
		Artist:  vote.Artist,
		City:    vote.City,
	})
	return nil
}

// ToggleFlag flips the flagged bit on one vote and returns the new state.
// This is the operator clear for intake-flagged votes, and also lets an
// operator flag a vote the rate limiter missed.
func (s *Service) ToggleFlag(ctx context.Context, id uuid.UUID) (*voteModels.Vote, error) {
	vote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	vote.Flagged = !vote.Flagged
	if err := s.store.SetFlagged(ctx, id, vote.Flagged); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "flag vote")
	}
	s.emit(ctx, audit.Event{
		Action:  audit.ActionVoteFlagToggled,
		Subject: id.String(),
		Actor:   requestcontext.AdminSubject(ctx),
		Artist:  vote.Artist,
		City:    vote.City,
		Detail:  toggleDetail(vote.Flagged),
	})
	return vote, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*voteModels.Vote, error) {
	vote, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "vote not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load vote")
	}
	return vote, nil
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

func toggleDetail(flagged bool) string {
	if flagged {
		return "flag set"
	}
	return "flag cleared"
}
