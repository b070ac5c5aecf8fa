package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics holds the api service's Prometheus collectors on a
// private registry, so only deliberately registered series are exported.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatRequestsTotal  *prometheus.CounterVec
	chatModeTotal      *prometheus.CounterVec
	chatNoSourcesTotal *prometheus.CounterVec
	chatSources        *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	llmTokensTotal     *prometheus.CounterVec
	streamChunksTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gch",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gch",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total completed chat invocations by outcome.",
		},
		[]string{"service", "endpoint", "outcome"},
	)
	chatModeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gch",
			Subsystem: "chat",
			Name:      "mode_requests_total",
			Help:      "Total chat invocations by retrieval mode.",
		},
		[]string{"service", "endpoint", "mode"},
	)
	chatNoSourcesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gch",
			Subsystem: "chat",
			Name:      "no_sources_total",
			Help:      "Total chat invocations that retrieved no sources.",
		},
		[]string{"service", "endpoint"},
	)
	chatSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gch",
			Subsystem: "chat",
			Name:      "retrieved_sources",
			Help:      "Distribution of evidence sources per chat invocation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gch",
			Subsystem: "chat",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gch",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Reported token usage by direction.",
		},
		[]string{"service", "direction", "model"},
	)
	streamChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gch",
			Subsystem: "chat",
			Name:      "stream_chunks_total",
			Help:      "Total streamed answer chunks forwarded to clients.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatRequestsTotal,
		chatModeTotal,
		chatNoSourcesTotal,
		chatSources,
		stageDuration,
		llmTokensTotal,
		streamChunksTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		chatRequestsTotal:  chatRequestsTotal,
		chatModeTotal:      chatModeTotal,
		chatNoSourcesTotal: chatNoSourcesTotal,
		chatSources:        chatSources,
		stageDuration:      stageDuration,
		llmTokensTotal:     llmTokensTotal,
		streamChunksTotal:  streamChunksTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordChatInvocation records one completed pipeline request.
func (m *HTTPServerMetrics) RecordChatInvocation(service, endpoint, mode, outcome string, sourceCount int) {
	if mode == "" {
		mode = "unknown"
	}
	m.chatRequestsTotal.WithLabelValues(service, endpoint, outcome).Inc()
	m.chatModeTotal.WithLabelValues(service, endpoint, mode).Inc()
	m.chatSources.WithLabelValues(service, endpoint).Observe(float64(sourceCount))
	if sourceCount == 0 {
		m.chatNoSourcesTotal.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) ObserveStage(service, stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordTokenUsage(service, model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, "out", model).Add(float64(completionTokens))
	}
}

func (m *HTTPServerMetrics) RecordStreamChunks(service string, chunks int) {
	if chunks <= 0 {
		return
	}
	m.streamChunksTotal.WithLabelValues(service).Add(float64(chunks))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
