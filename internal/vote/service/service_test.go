package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"demandstage/internal/platform/config"
	"demandstage/internal/vote/models"
	voteStore "demandstage/internal/vote/store/memory"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/audit"
	auditStore "demandstage/pkg/platform/audit/store/memory"
	"demandstage/pkg/requestcontext"
)

type IntakeServiceSuite struct {
	suite.Suite
	store   *voteStore.Store
	trail   *auditStore.Store
	service *Service
}

func TestIntakeServiceSuite(t *testing.T) {
	suite.Run(t, new(IntakeServiceSuite))
}

func (s *IntakeServiceSuite) SetupTest() {
	s.store = voteStore.NewInMemoryStore()
	s.trail = auditStore.NewInMemoryStore()

	var err error
	s.service, err = New(s.store, config.VoteConfig{
		RateWindow:     2 * time.Minute,
		SoftThreshold:  5,
		HardMultiplier: 2,
	}, WithAuditPublisher(recordingPublisher{store: s.trail}))
	s.Require().NoError(err)
}

// ctx returns a request context with a known network signal and time.
func (s *IntakeServiceSuite) ctx(ip string) context.Context {
	ctx := requestcontext.WithClientIP(context.Background(), ip)
	return requestcontext.WithTime(ctx, time.Now())
}

func (s *IntakeServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, config.VoteConfig{})
		s.Error(err)
		s.Contains(err.Error(), "vote store is required")
	})
}

func (s *IntakeServiceSuite) TestValidation() {
	s.Run("missing fields are named in the error", func() {
		_, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{Artist: "Mitski"})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
		s.Contains(err.Error(), "city")
		s.Contains(err.Error(), "device_id")
	})

	s.Run("whitespace-only fields count as missing", func() {
		_, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "  ", City: "Lisbon", DeviceID: "dev-1",
		})
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

func (s *IntakeServiceSuite) TestAcceptance() {
	s.Run("clean submission yields an unflagged receipt", func() {
		receipt, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
		})
		s.Require().NoError(err)
		s.True(receipt.Success)
		s.False(receipt.Flagged)
		s.Len(s.trail.ListByAction(audit.ActionVoteAccepted), 1)
	})

	s.Run("vote is committed with request metadata", func() {
		votes, err := s.store.List(context.Background())
		s.Require().NoError(err)
		s.Require().Len(votes, 1)
		s.Equal("10.0.0.1", votes[0].NetworkSignal)
		s.Equal("dev-1", votes[0].DeviceSignal)
	})
}

func (s *IntakeServiceSuite) TestDuplicateGuard() {
	first, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
		Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
	})
	s.Require().NoError(err)
	s.Require().True(first.Success)

	s.Run("same network is rejected with the network message", func() {
		_, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: "Lisbon", DeviceID: "dev-2",
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
		s.Contains(dErrors.MessageOf(err), "network")
	})

	s.Run("same device from elsewhere is rejected with the device message", func() {
		_, err := s.service.Submit(s.ctx("10.0.0.9"), models.Submission{
			Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
		s.Contains(dErrors.MessageOf(err), "device")
	})

	s.Run("network verdict is evaluated before the device verdict", func() {
		_, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
		})
		s.Require().Error(err)
		s.Contains(dErrors.MessageOf(err), "network")
	})

	s.Run("same device may vote for a different choice", func() {
		receipt, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: "Porto", DeviceID: "dev-1",
		})
		s.Require().NoError(err)
		s.True(receipt.Success)
	})

	s.Run("unknown networks never collide with each other", func() {
		_, err := s.service.Submit(s.ctx(""), models.Submission{
			Artist: "Boygenius", City: "Madrid", DeviceID: "dev-3",
		})
		s.Require().NoError(err)
		_, err = s.service.Submit(s.ctx(""), models.Submission{
			Artist: "Boygenius", City: "Madrid", DeviceID: "dev-4",
		})
		s.Require().NoError(err)
	})

	s.Run("duplicate rejections land on the audit trail", func() {
		s.NotEmpty(s.trail.ListByAction(audit.ActionVoteRejectedDuplicate))
	})
}

func (s *IntakeServiceSuite) TestRateLimiter() {
	// One device voting for distinct cities so the duplicate guard stays out
	// of the way. Soft threshold 5, hard threshold 10.
	submit := func(n int) (*models.Receipt, error) {
		return s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: fmt.Sprintf("City-%d", n), DeviceID: "dev-1",
		})
	}

	for n := 1; n <= 4; n++ {
		receipt, err := submit(n)
		s.Require().NoError(err)
		s.False(receipt.Flagged, "vote %d should be clean", n)
	}

	s.Run("fifth in-window vote is accepted but flagged", func() {
		receipt, err := submit(5)
		s.Require().NoError(err)
		s.True(receipt.Success)
		s.True(receipt.Flagged)
		s.Len(s.trail.ListByAction(audit.ActionVoteFlagged), 1)
	})

	for n := 6; n <= 9; n++ {
		receipt, err := submit(n)
		s.Require().NoError(err)
		s.True(receipt.Flagged, "vote %d should be flagged", n)
	}

	s.Run("tenth in-window vote is blocked", func() {
		_, err := submit(10)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeRateLimited))
		s.Len(s.trail.ListByAction(audit.ActionVoteRejectedRateLimited), 1)
	})

	s.Run("blocked attempts leave no row", func() {
		count, err := s.store.CountByDeviceSince(context.Background(), "dev-1", time.Now().Add(-time.Hour))
		s.Require().NoError(err)
		s.Equal(9, count)
	})
}

func (s *IntakeServiceSuite) TestRateWindowSlides() {
	now := time.Now()

	// Nine old votes, all outside the window.
	for n := 0; n < 9; n++ {
		s.Require().NoError(s.store.Insert(context.Background(), &models.Vote{
			Artist:        "Mitski",
			City:          fmt.Sprintf("Old-%d", n),
			DeviceSignal:  "dev-1",
			NetworkSignal: "10.0.0.1",
			CreatedAt:     now.Add(-10 * time.Minute),
		}))
	}

	ctx := requestcontext.WithTime(requestcontext.WithClientIP(context.Background(), "10.0.0.1"), now)
	receipt, err := s.service.Submit(ctx, models.Submission{
		Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
	})
	s.Require().NoError(err)
	s.False(receipt.Flagged, "votes outside the window must not accumulate")
}

func (s *IntakeServiceSuite) TestDuplicateCheckedBeforeRate() {
	// Saturate the identity past the hard threshold, then resubmit one of the
	// committed choices. The caller must see the specific duplicate message,
	// not the generic rate-limit one.
	for n := 1; n <= 9; n++ {
		_, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: fmt.Sprintf("City-%d", n), DeviceID: "dev-1",
		})
		s.Require().NoError(err)
	}

	_, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
		Artist: "Mitski", City: "City-3", DeviceID: "dev-1",
	})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
	s.False(dErrors.Is(err, dErrors.CodeRateLimited))
}

func (s *IntakeServiceSuite) TestInsertIsAuthoritative() {
	s.Run("constraint violation on insert is reported as a duplicate", func() {
		svc, err := New(&racingStore{err: models.ErrNetworkDuplicate}, config.VoteConfig{
			RateWindow: 2 * time.Minute, SoftThreshold: 5, HardMultiplier: 2,
		})
		s.Require().NoError(err)

		_, err = svc.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
		s.Contains(dErrors.MessageOf(err), "network")
	})

	s.Run("other storage failures surface as internal", func() {
		svc, err := New(&racingStore{err: fmt.Errorf("connection reset")}, config.VoteConfig{
			RateWindow: 2 * time.Minute, SoftThreshold: 5, HardMultiplier: 2,
		})
		s.Require().NoError(err)

		_, err = svc.Submit(s.ctx("10.0.0.1"), models.Submission{
			Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInternal))
	})
}

func (s *IntakeServiceSuite) TestHasVoted() {
	_, err := s.service.Submit(s.ctx("10.0.0.1"), models.Submission{
		Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1",
	})
	s.Require().NoError(err)

	status, err := s.service.HasVoted(context.Background(), "dev-1", "Mitski", "Lisbon")
	s.Require().NoError(err)
	s.True(status.HasVoted)

	status, err = s.service.HasVoted(context.Background(), "dev-2", "Mitski", "Lisbon")
	s.Require().NoError(err)
	s.False(status.HasVoted)

	_, err = s.service.HasVoted(context.Background(), "", "Mitski", "Lisbon")
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

// recordingPublisher appends straight to a memory store, skipping the
// buffered publisher so assertions see events immediately.
type recordingPublisher struct {
	store *auditStore.Store
}

func (p recordingPublisher) Emit(ctx context.Context, event audit.Event) error {
	return p.store.Append(ctx, event)
}

// racingStore passes the guard and rate checks, then fails the insert. It
// models a concurrent writer winning the race between check and commit.
type racingStore struct {
	err error
}

func (r *racingStore) Insert(context.Context, *models.Vote) error { return r.err }
func (r *racingStore) HasDeviceVoted(context.Context, string, string, string) (bool, error) {
	return false, nil
}
func (r *racingStore) HasNetworkVoted(context.Context, string, string, string) (bool, error) {
	return false, nil
}
func (r *racingStore) CountByDeviceSince(context.Context, string, time.Time) (int, error) {
	return 0, nil
}
func (r *racingStore) CountByNetworkSince(context.Context, string, time.Time) (int, error) {
	return 0, nil
}
