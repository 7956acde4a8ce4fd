package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"demandstage/internal/event/models"
	eventStore "demandstage/internal/event/store/memory"
	tallyService "demandstage/internal/tally/service"
	voteModels "demandstage/internal/vote/models"
	voteStore "demandstage/internal/vote/store/memory"
	dErrors "demandstage/pkg/domain-errors"
	"demandstage/pkg/platform/audit"
	auditStore "demandstage/pkg/platform/audit/store/memory"
	txcontext "demandstage/pkg/platform/tx"
)

type EventServiceSuite struct {
	suite.Suite
	events  *eventStore.Store
	votes   *voteStore.Store
	trail   *auditStore.Store
	service *Service
}

func TestEventServiceSuite(t *testing.T) {
	suite.Run(t, new(EventServiceSuite))
}

func (s *EventServiceSuite) SetupTest() {
	s.events = eventStore.NewInMemoryStore()
	s.votes = voteStore.NewInMemoryStore()
	s.trail = auditStore.NewInMemoryStore()

	var err error
	s.service, err = New(s.events, s.votes, txcontext.NoopRunner{},
		WithAuditPublisher(trailPublisher{store: s.trail}))
	s.Require().NoError(err)
}

func (s *EventServiceSuite) seedVotes(artist, city string, n int) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.votes.Insert(context.Background(), &voteModels.Vote{
			Artist:        artist,
			City:          city,
			DeviceSignal:  fmt.Sprintf("%s-%s-dev-%d", artist, city, i),
			NetworkSignal: voteModels.NetworkUnknown,
			CreatedAt:     time.Now(),
		}))
	}
}

func (s *EventServiceSuite) verifyRequest(artist, city string) models.VerifyRequest {
	return models.VerifyRequest{
		Artist:    artist,
		City:      city,
		Venue:     "Coliseu",
		EventDate: time.Now().AddDate(0, 2, 0),
		Sponsors:  []string{"radio-x"},
	}
}

func (s *EventServiceSuite) TestVerify() {
	ctx := context.Background()
	s.seedVotes("A", "X", 7)
	s.seedVotes("B", "Y", 2)

	event, err := s.service.Verify(ctx, s.verifyRequest("A", "X"))
	s.Require().NoError(err)

	s.Run("snapshot captures the demand at verification time", func() {
		s.Equal(7, event.TotalVotes)
		s.True(event.Verified)
		s.NotEqual(uuid.Nil, event.ID)
	})

	s.Run("the pair's votes are swept", func() {
		count, err := s.votes.CountByChoice(ctx, "A", "X")
		s.Require().NoError(err)
		s.Equal(0, count)
	})

	s.Run("other pairs are untouched", func() {
		count, err := s.votes.CountByChoice(ctx, "B", "Y")
		s.Require().NoError(err)
		s.Equal(2, count)
	})

	s.Run("the fresh tally starts at zero", func() {
		tallies, err := tallyService.New(s.votes)
		s.Require().NoError(err)
		combinations, err := tallies.Combinations(ctx)
		s.Require().NoError(err)
		for _, c := range combinations {
			s.False(c.Artist == "A" && c.City == "X")
		}
	})

	s.Run("the pair can accumulate demand again from one", func() {
		s.seedVotes("A", "X", 1)
		count, err := s.votes.CountByChoice(ctx, "A", "X")
		s.Require().NoError(err)
		s.Equal(1, count)
	})

	s.Run("the snapshot is never recomputed", func() {
		stored, err := s.events.Get(ctx, event.ID)
		s.Require().NoError(err)
		s.Equal(7, stored.TotalVotes)
	})

	s.Run("verification lands on the audit trail", func() {
		entries := s.trail.ListByAction(audit.ActionEventVerified)
		s.Require().Len(entries, 1)
		s.Equal(event.ID.String(), entries[0].Subject)
	})
}

func (s *EventServiceSuite) TestVerifyWithoutVotes() {
	// Verifying a pair nobody voted for is allowed; the snapshot is zero.
	event, err := s.service.Verify(context.Background(), s.verifyRequest("C", "Z"))
	s.Require().NoError(err)
	s.Equal(0, event.TotalVotes)
}

func (s *EventServiceSuite) TestVerifyValidation() {
	_, err := s.service.Verify(context.Background(), models.VerifyRequest{Artist: "A"})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	s.Contains(err.Error(), "city")
	s.Contains(err.Error(), "venue")
	s.Contains(err.Error(), "event_date")
}

func (s *EventServiceSuite) TestVerifyRollsBackOnInsertFailure() {
	s.seedVotes("A", "X", 3)

	svc, err := New(failingEventStore{}, s.votes, txcontext.NoopRunner{})
	s.Require().NoError(err)

	_, err = svc.Verify(context.Background(), s.verifyRequest("A", "X"))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInternal))

	// The insert failed before the sweep ran, so the votes survive.
	count, err := s.votes.CountByChoice(context.Background(), "A", "X")
	s.Require().NoError(err)
	s.Equal(3, count)
}

func (s *EventServiceSuite) TestList() {
	_, err := s.service.Verify(context.Background(), s.verifyRequest("A", "X"))
	s.Require().NoError(err)

	events, err := s.service.List(context.Background())
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *EventServiceSuite) TestDelete() {
	event, err := s.service.Verify(context.Background(), s.verifyRequest("A", "X"))
	s.Require().NoError(err)

	s.Run("removes the event and audits the action", func() {
		s.Require().NoError(s.service.Delete(context.Background(), event.ID))
		events, err := s.service.List(context.Background())
		s.Require().NoError(err)
		s.Empty(events)
		s.Len(s.trail.ListByAction(audit.ActionEventDeleted), 1)
	})

	s.Run("unknown IDs return not found", func() {
		err := s.service.Delete(context.Background(), uuid.New())
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

type trailPublisher struct {
	store *auditStore.Store
}

func (p trailPublisher) Emit(ctx context.Context, event audit.Event) error {
	return p.store.Append(ctx, event)
}

// failingEventStore rejects inserts so rollback behavior can be observed.
type failingEventStore struct{}

func (failingEventStore) Insert(context.Context, *models.Event) error {
	return fmt.Errorf("disk full")
}
func (failingEventStore) Get(context.Context, uuid.UUID) (*models.Event, error) {
	return nil, fmt.Errorf("disk full")
}
func (failingEventStore) List(context.Context) ([]*models.Event, error) {
	return nil, fmt.Errorf("disk full")
}
func (failingEventStore) Delete(context.Context, uuid.UUID) error {
	return fmt.Errorf("disk full")
}
