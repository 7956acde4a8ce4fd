// Package service computes demand tallies. Tallies are pure reductions over
// the live vote set, recomputed on every read; nothing is cached, so a
// verified event's vote sweep is visible immediately.
package service

import (
	"context"
	"errors"
	"sort"
	"time"

	tallyMetrics "demandstage/internal/tally/metrics"
	"demandstage/internal/tally/models"
	voteModels "demandstage/internal/vote/models"
	dErrors "demandstage/pkg/domain-errors"
)

// DefaultTrendingLimit bounds the trending slice when the caller does not
// ask for a specific size.
const DefaultTrendingLimit = 5

// Store supplies the live votes the reductions run over.
type Store interface {
	List(ctx context.Context) ([]*voteModels.Vote, error)
}

// Service exposes the tally read model.
type Service struct {
	store   Store
	metrics *tallyMetrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the tally computation metrics.
func WithMetrics(m *tallyMetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates the tally service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("vote store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Combinations returns per-(artist, city) counts, highest first.
func (s *Service) Combinations(ctx context.Context) ([]models.Combination, error) {
	votes, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	defer s.observe("combinations", time.Now())
	return ReduceCombinations(votes), nil
}

// Artists returns per-artist totals across all cities, highest first.
func (s *Service) Artists(ctx context.Context) ([]models.ArtistTotal, error) {
	votes, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	defer s.observe("artists", time.Now())
	return ReduceArtists(votes), nil
}

// Trending returns the top demanded combinations. A non-positive limit falls
// back to DefaultTrendingLimit.
func (s *Service) Trending(ctx context.Context, limit int) ([]models.Combination, error) {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	combinations, err := s.Combinations(ctx)
	if err != nil {
		return nil, err
	}
	if len(combinations) > limit {
		combinations = combinations[:limit]
	}
	return combinations, nil
}

func (s *Service) load(ctx context.Context) ([]*voteModels.Vote, error) {
	votes, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load votes")
	}
	return votes, nil
}

func (s *Service) observe(kind string, start time.Time) {
	s.metrics.Observe(kind, time.Since(start))
}

// ReduceCombinations folds votes into per-(artist, city) counts sorted by
// count descending. Ties keep first-seen order; only the count ordering is
// contractual. Reducing the same input twice yields the same result.
func ReduceCombinations(votes []*voteModels.Vote) []models.Combination {
	index := make(map[voteModels.Choice]int)
	out := make([]models.Combination, 0)
	for _, v := range votes {
		key := voteModels.Choice{Artist: v.Artist, City: v.City}
		if i, ok := index[key]; ok {
			out[i].Count++
			continue
		}
		index[key] = len(out)
		out = append(out, models.Combination{Artist: v.Artist, City: v.City, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// ReduceArtists folds votes into per-artist totals sorted by count
// descending.
func ReduceArtists(votes []*voteModels.Vote) []models.ArtistTotal {
	index := make(map[string]int)
	out := make([]models.ArtistTotal, 0)
	for _, v := range votes {
		if i, ok := index[v.Artist]; ok {
			out[i].Count++
			continue
		}
		index[v.Artist] = len(out)
		out = append(out, models.ArtistTotal{Artist: v.Artist, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
