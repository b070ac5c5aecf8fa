package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkarpenko/grounded-chat/internal/bootstrap"
	"github.com/mkarpenko/grounded-chat/internal/config"
	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/observability/logging"
	"github.com/mkarpenko/grounded-chat/internal/observability/metrics"
)

const serviceName = "trace-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:        ":" + cfg.WorkerMetricsPort,
		Handler:     m.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSTraceSubject)
	err = app.Audit.SubscribeTraces(ctx, func(handlerCtx context.Context, event domain.TraceEvent) error {
		m.StartTrace()
		m.ObserveTraceLag(serviceName, time.Since(event.CreatedAt))

		persistCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		start := time.Now()
		saveErr := app.Traces.SaveTrace(persistCtx, event)
		m.FinishTrace(serviceName, time.Since(start), saveErr)
		if saveErr != nil {
			logger.Error("trace_persist_failed", "trace_id", event.ID, "error", saveErr)
		}
		return saveErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
