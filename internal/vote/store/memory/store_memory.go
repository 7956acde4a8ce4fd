// Package memory implements the vote store over an in-process map. It
// enforces the same uniqueness rules as the Postgres schema so unit tests
// exercise the authoritative insert path.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"demandstage/internal/vote/models"
	"demandstage/pkg/platform/sentinel"
)

// Store keeps votes in insertion order behind a mutex.
type Store struct {
	mu    sync.RWMutex
	votes []*models.Vote
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *Store {
	return &Store{}
}

// Insert adds a vote, rejecting uniqueness violations. The network rule is
// checked first so its more specific error wins when both would trip.
func (s *Store) Insert(_ context.Context, vote *models.Vote) error {
	if vote == nil {
		return fmt.Errorf("vote is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.votes {
		if v.Artist != vote.Artist || v.City != vote.City {
			continue
		}
		if vote.HasKnownNetwork() && v.NetworkSignal == vote.NetworkSignal {
			return fmt.Errorf("insert vote: %w", models.ErrNetworkDuplicate)
		}
		if v.DeviceSignal == vote.DeviceSignal {
			return fmt.Errorf("insert vote: %w", models.ErrDeviceDuplicate)
		}
	}

	stored := *vote
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
		vote.ID = stored.ID
	}
	s.votes = append(s.votes, &stored)
	return nil
}

// HasDeviceVoted reports whether the device already voted for the choice.
func (s *Store) HasDeviceVoted(_ context.Context, deviceSignal, artist, city string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.votes {
		if v.DeviceSignal == deviceSignal && v.Artist == artist && v.City == city {
			return true, nil
		}
	}
	return false, nil
}

// HasNetworkVoted reports whether the network already voted for the choice.
// The unknown sentinel never matches.
func (s *Store) HasNetworkVoted(_ context.Context, networkSignal, artist, city string) (bool, error) {
	if networkSignal == "" || networkSignal == models.NetworkUnknown {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.votes {
		if v.NetworkSignal == networkSignal && v.Artist == artist && v.City == city {
			return true, nil
		}
	}
	return false, nil
}

// CountByDeviceSince counts the device's votes created at or after since.
func (s *Store) CountByDeviceSince(_ context.Context, deviceSignal string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, v := range s.votes {
		if v.DeviceSignal == deviceSignal && !v.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// CountByNetworkSince counts the network's votes created at or after since.
// Returns zero for the unknown sentinel.
func (s *Store) CountByNetworkSince(_ context.Context, networkSignal string, since time.Time) (int, error) {
	if networkSignal == "" || networkSignal == models.NetworkUnknown {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, v := range s.votes {
		if v.NetworkSignal == networkSignal && !v.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Get returns one vote by ID.
func (s *Store) Get(_ context.Context, id uuid.UUID) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.votes {
		if v.ID == id {
			copied := *v
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get vote: %w", sentinel.ErrNotFound)
}

// List returns all votes in insertion order.
func (s *Store) List(_ context.Context) ([]*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Vote, 0, len(s.votes))
	for _, v := range s.votes {
		copied := *v
		out = append(out, &copied)
	}
	return out, nil
}

// ListFlagged returns flagged votes in insertion order.
func (s *Store) ListFlagged(_ context.Context) ([]*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Vote
	for _, v := range s.votes {
		if v.Flagged {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

// ListSuspiciousGroups returns identity signals with at least minCount votes,
// largest groups first.
func (s *Store) ListSuspiciousGroups(_ context.Context, minCount int) ([]models.SuspiciousGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make(map[string]int)
	networks := make(map[string]int)
	for _, v := range s.votes {
		devices[v.DeviceSignal]++
		if v.HasKnownNetwork() {
			networks[v.NetworkSignal]++
		}
	}

	var groups []models.SuspiciousGroup
	for signal, count := range devices {
		if count >= minCount {
			groups = append(groups, models.SuspiciousGroup{SignalKind: models.SignalDevice, Signal: signal, Count: count})
		}
	}
	for signal, count := range networks {
		if count >= minCount {
			groups = append(groups, models.SuspiciousGroup{SignalKind: models.SignalNetwork, Signal: signal, Count: count})
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Signal < groups[j].Signal
	})
	return groups, nil
}

// Delete removes one vote by ID.
func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.votes {
		if v.ID == id {
			s.votes = append(s.votes[:i], s.votes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete vote: %w", sentinel.ErrNotFound)
}

// SetFlagged sets the flagged bit on one vote.
func (s *Store) SetFlagged(_ context.Context, id uuid.UUID, flagged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.votes {
		if v.ID == id {
			v.Flagged = flagged
			return nil
		}
	}
	return fmt.Errorf("flag vote: %w", sentinel.ErrNotFound)
}

// CountByChoice counts live votes for one (artist, city) pair.
func (s *Store) CountByChoice(_ context.Context, artist, city string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, v := range s.votes {
		if v.Artist == artist && v.City == city {
			count++
		}
	}
	return count, nil
}

// DeleteByChoice removes every vote for one (artist, city) pair and returns
// how many were removed.
func (s *Store) DeleteByChoice(_ context.Context, artist, city string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.votes[:0]
	removed := 0
	for _, v := range s.votes {
		if v.Artist == artist && v.City == city {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	s.votes = kept
	return removed, nil
}
