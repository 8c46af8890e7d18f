package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseffiran/SilkRouteHelper-1/internal/bootstrap"
	"github.com/joseffiran/SilkRouteHelper-1/internal/config"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/observability/logging"
	"github.com/joseffiran/SilkRouteHelper-1/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load().ForWorker()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Registerer: workerMetrics.Registry(),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err.Error())
		}
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CleanupSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		n, err := app.Cleanup.Sweep(sweepCtx)
		if err != nil {
			slog.Error("cleanup_sweep_failed", "error", err.Error())
			return
		}
		if app.Metrics != nil {
			app.Metrics.DocumentsReclaimed(n)
		}
	}); err != nil {
		slog.Error("cleanup_schedule_invalid", "schedule", cfg.CleanupSchedule, "error", err.Error())
		os.Exit(1)
	}
	scheduler.Start()

	slog.Info("worker_started", "stream", cfg.NATSStream, "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrent)
	err = app.Queue.Consume(ctx, func(handlerCtx context.Context, delivery domain.JobDelivery) error {
		start := time.Now()
		workerMetrics.StartJob()
		workerMetrics.ObserveQueueLag(serviceName, start.Sub(delivery.Job.EnqueuedAt))

		jobCtx, cancel := context.WithTimeout(handlerCtx, cfg.ProcessingTimeout)
		defer cancel()
		handleErr := app.Dispatcher.HandleJob(jobCtx, delivery)

		workerMetrics.FinishJob(serviceName, deliveryOutcome(handleErr), time.Since(start))
		return handleErr
	})
	if err != nil {
		slog.Error("worker_consume_failed", "error", err.Error())
	}

	<-scheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func deliveryOutcome(err error) string {
	switch {
	case err == nil:
		return "ack"
	case domain.IsKind(err, domain.ErrTemporary):
		return "retry"
	default:
		return "drop"
	}
}
