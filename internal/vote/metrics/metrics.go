// Package metrics exposes Prometheus counters for the intake pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Intake outcomes used as label values.
const (
	OutcomeAccepted       = "accepted"
	OutcomeFlagged        = "flagged"
	OutcomeInvalid        = "invalid"
	OutcomeDuplicate      = "duplicate"
	OutcomeRateLimited    = "rate_limited"
	OutcomeStorageFailure = "storage_failure"
)

// Metrics tracks vote intake outcomes.
type Metrics struct {
	Submissions *prometheus.CounterVec
}

// New registers the intake metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Submissions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "demandstage_vote_submissions_total",
			Help: "Vote submissions by intake outcome.",
		}, []string{"outcome"}),
	}
}

// Record increments the counter for one intake outcome.
func (m *Metrics) Record(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}
