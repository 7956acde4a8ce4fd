// Package metrics tracks event lifecycle counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks event verification outcomes.
type Metrics struct {
	Verified prometheus.Counter
	Deleted  prometheus.Counter
	// SnapshotVotes observes how much demand each verification converted.
	SnapshotVotes prometheus.Histogram
}

// New registers the event metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Verified: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "demandstage_events_verified_total",
			Help: "Events created through the verification transition.",
		}),
		Deleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "demandstage_events_deleted_total",
			Help: "Events removed by operators.",
		}),
		SnapshotVotes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "demandstage_event_snapshot_votes",
			Help:    "Vote totals captured at verification time.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}
