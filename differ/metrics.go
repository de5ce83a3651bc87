package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors for the StateDiffer.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	diffErrors   prometheus.Counter
	diffChanges  *prometheus.CounterVec
}

// NewMetrics creates and registers the differ metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_differ_duration_seconds",
			Help:    "Time taken to diff two registry states.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{}),
		diffErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_differ_errors_total",
			Help: "Number of state pairs that could not be diffed.",
		}),
		diffChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_differ_changes_total",
			Help: "Number of registry changes emitted in diffs, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.diffDuration, m.diffErrors, m.diffChanges)
	return m
}
