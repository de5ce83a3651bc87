package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics holds the Prometheus metrics for a registry System.
type Metrics struct {
	tokens          prometheus.Gauge
	pairs           prometheus.Gauge
	sequence        prometheus.Gauge
	operationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_tokens",
			Help: "Number of approved tokens.",
		}),
		pairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_pairs",
			Help: "Number of active trading pairs.",
		}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_sequence",
			Help: "Sequence number of the latest registry mutation.",
		}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_operations_total",
			Help: "Total number of registry mutations, labeled by operation and result.",
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(m.tokens, m.pairs, m.sequence, m.operationsTotal)
	return m
}

func (m *Metrics) observeOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) observeView(v *View) {
	if m == nil {
		return
	}
	m.tokens.Set(float64(len(v.Tokens)))
	m.pairs.Set(float64(len(v.Pairs)))
	m.sequence.Set(float64(v.Sequence))
}
