package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SignalsRecorded   *prometheus.CounterVec
	RecomputesTotal   *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram
	ConflictsObserved *prometheus.CounterVec
	ProfilesPublished prometheus.Counter
	PublishRetries    prometheus.Counter
	StaleServed       prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		SignalsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dinemate_preference_signals_recorded_total",
			Help: "Total number of preference signals appended to the log",
		}, []string{"dimension", "polarity"}),
		RecomputesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dinemate_preference_recomputes_total",
			Help: "Total number of group profile recomputations",
		}, []string{"outcome"}),
		RecomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dinemate_preference_recompute_duration_seconds",
			Help:    "Time spent recomputing a group profile from its signal log",
			Buckets: prometheus.DefBuckets,
		}),
		ConflictsObserved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dinemate_preference_conflicts_observed_total",
			Help: "Total number of dimension conflicts surfaced in computed profiles",
		}, []string{"dimension"}),
		ProfilesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dinemate_preference_profiles_published_total",
			Help: "Total number of fresh profiles served or pushed to subscribers",
		}),
		PublishRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dinemate_preference_publish_retries_total",
			Help: "Total number of recompute retries during publication",
		}),
		StaleServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dinemate_preference_stale_profiles_served_total",
			Help: "Total number of requests answered with a last-good stale profile",
		}),
	}
}

func (m *Metrics) RecordSignal(dimension, polarity string) {
	m.SignalsRecorded.WithLabelValues(dimension, polarity).Inc()
}

func (m *Metrics) ObserveRecompute(outcome string, elapsed time.Duration) {
	m.RecomputesTotal.WithLabelValues(outcome).Inc()
	m.RecomputeDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordConflict(dimension string) {
	m.ConflictsObserved.WithLabelValues(dimension).Inc()
}
