package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the trace-audit consumer.
type WorkerMetrics struct {
	registry *prometheus.Registry

	traceTotal    *prometheus.CounterVec
	traceDuration *prometheus.HistogramVec
	traceInFlight prometheus.Gauge
	traceLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	traceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gch",
			Subsystem: "worker",
			Name:      "trace_events_total",
			Help:      "Total persisted trace events by status.",
		},
		[]string{"service", "status"},
	)
	traceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gch",
			Subsystem: "worker",
			Name:      "trace_persist_duration_seconds",
			Help:      "Trace event persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	traceInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gch",
			Subsystem: "worker",
			Name:      "trace_events_in_flight",
			Help:      "Number of trace events currently being persisted.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	traceLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gch",
			Subsystem: "worker",
			Name:      "trace_lag_seconds",
			Help:      "Delay between trace publication and persistence start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)

	registry.MustRegister(traceTotal, traceDuration, traceInFlight, traceLag)

	return &WorkerMetrics{
		registry:      registry,
		traceTotal:    traceTotal,
		traceDuration: traceDuration,
		traceInFlight: traceInFlight,
		traceLag:      traceLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTrace() {
	m.traceInFlight.Inc()
}

func (m *WorkerMetrics) FinishTrace(service string, duration time.Duration, err error) {
	m.traceInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.traceTotal.WithLabelValues(service, status).Inc()
	m.traceDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveTraceLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.traceLag.WithLabelValues(service).Observe(lag.Seconds())
}
