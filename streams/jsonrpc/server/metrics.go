package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// rpcMetrics holds the per-method collectors of the registry API.
type rpcMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newRPCMetrics(reg prometheus.Registerer) *rpcMetrics {
	m := &rpcMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_rpc_requests_total",
			Help: "Registry RPC calls, by method and result.",
		}, []string{"method", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_rpc_duration_seconds",
			Help:    "Registry RPC call latency, by method.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *rpcMetrics) observe(method string, start time.Time, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.requests.WithLabelValues(method, result).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// streamMetrics holds the streamer collectors.
type streamMetrics struct {
	subscribers prometheus.Gauge
	events      *prometheus.CounterVec
	resyncs     prometheus.Counter
	publishErrs prometheus.Counter
}

func newStreamMetrics(reg prometheus.Registerer) *streamMetrics {
	m := &streamMetrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_stream_subscribers",
			Help: "Number of active registry stream subscribers.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_stream_events_total",
			Help: "Events delivered to registry stream subscribers, by type.",
		}, []string{"type"}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_stream_resyncs_total",
			Help: "Subscribers whose queue overflowed and were sent a full state.",
		}),
		publishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_stream_publish_errors_total",
			Help: "States that could not be encoded or diffed for publication.",
		}),
	}
	reg.MustRegister(m.subscribers, m.events, m.resyncs, m.publishErrs)
	return m
}
