// Package metrics instruments restaurant search.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Searches       *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	Infeasible     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Searches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dinemate_restaurant_searches_total",
			Help: "Total number of venue searches by outcome (ok, empty, error)",
		}, []string{"outcome"}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dinemate_restaurant_search_duration_seconds",
			Help:    "Time spent querying the venue API",
			Buckets: prometheus.DefBuckets,
		}),
		Infeasible: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dinemate_restaurant_infeasible_profiles_total",
			Help: "Total number of searches whose hard constraints matched no venues",
		}),
	}
}

func (m *Metrics) ObserveSearch(outcome string, elapsed time.Duration) {
	m.Searches.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordInfeasible() {
	m.Infeasible.Inc()
}
