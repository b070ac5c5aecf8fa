package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkarpenko/grounded-chat/internal/core/ports"
	"github.com/mkarpenko/grounded-chat/internal/observability/metrics"
)

type Config struct {
	ServiceName string

	// ChatModel labels token-usage metrics.
	ChatModel string

	RateLimitRPS   float64
	RateLimitBurst int

	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	pipeline ports.ChatPipeline
	sessions ports.SessionStore
	traces   ports.TraceSink
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
	cfg      Config
}

// NewRouter wires the chat endpoints. sessions and traces are optional; nil
// disables persistence and audit publishing respectively.
func NewRouter(
	pipeline ports.ChatPipeline,
	sessions ports.SessionStore,
	traces ports.TraceSink,
	m *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	cfg Config,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BackpressureWait <= 0 {
		cfg.BackpressureWait = 100 * time.Millisecond
	}
	return &Router{
		pipeline: pipeline,
		sessions: sessions,
		traces:   traces,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("/v1/chat", rt.chat)
	mux.HandleFunc("/v1/chat/stream", rt.chatStream)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
