// Package metrics tracks tally computation latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks tally reductions.
type Metrics struct {
	ComputeDuration *prometheus.HistogramVec
}

// New registers the tally metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ComputeDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "demandstage_tally_compute_seconds",
			Help:    "Time spent recomputing tallies from live votes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// Observe records one reduction of the given kind.
func (m *Metrics) Observe(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.ComputeDuration.WithLabelValues(kind).Observe(d.Seconds())
}
