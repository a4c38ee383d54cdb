package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/frontrangetitle/titleworks/internal/bootstrap"
	"github.com/frontrangetitle/titleworks/internal/config"
	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/queue/nats"
	"github.com/frontrangetitle/titleworks/internal/observability/logging"
	"github.com/frontrangetitle/titleworks/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("worker", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", "error", err)
		}
	}()

	handler := instrumented(workerMetrics, dispatch(app))
	var wg sync.WaitGroup
	for _, lane := range nats.Lanes() {
		wg.Add(1)
		go func(lane string) {
			defer wg.Done()
			logger.Info("lane_subscribed", "lane", lane)
			if err := app.Queue.Subscribe(ctx, lane, handler); err != nil {
				logger.Error("lane_subscribe_failed", "lane", lane, "error", err)
				stop()
			}
		}(lane)
	}

	go runScheduler(ctx, app, cfg, logger)

	<-ctx.Done()
	wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

// dispatch routes a delivered task to the usecase that owns it.
func dispatch(app *bootstrap.App) func(ctx context.Context, task domain.Task) error {
	return func(ctx context.Context, task domain.Task) error {
		switch task.Type {
		case domain.TaskProcessBatch:
			return app.Batches.HandleProcessBatch(ctx, task)
		case domain.TaskProbeJurisdictions, domain.TaskExpireStale:
			return app.Maintenance.Handle(ctx, task)
		default:
			return app.Orchestrate.Handle(ctx, task)
		}
	}
}

func instrumented(m *metrics.WorkerMetrics, next func(ctx context.Context, task domain.Task) error) func(ctx context.Context, task domain.Task) error {
	return func(ctx context.Context, task domain.Task) error {
		if !task.EnqueuedAt.IsZero() {
			m.ObserveQueueLag("worker", string(task.Type), time.Since(task.EnqueuedAt))
		}
		m.StartTask()
		start := time.Now()
		err := next(ctx, task)
		m.FinishTask("worker", string(task.Type), time.Since(start), err)
		return err
	}
}

// runScheduler enqueues the periodic maintenance tasks. Both passes go
// through the queue like any other work so they inherit retry and
// terminal-failure handling.
func runScheduler(ctx context.Context, app *bootstrap.App, cfg config.Config, logger *slog.Logger) {
	probe := time.NewTicker(cfg.HealthProbeInterval)
	stale := time.NewTicker(cfg.StaleScanInterval)
	defer probe.Stop()
	defer stale.Stop()

	enqueue := func(taskType domain.TaskType) {
		task := domain.Task{ID: uuid.NewString(), Type: taskType}
		if err := app.Queue.Enqueue(ctx, task); err != nil {
			logger.Error("maintenance_enqueue_failed", "task_type", string(taskType), "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-probe.C:
			enqueue(domain.TaskProbeJurisdictions)
		case <-stale.C:
			enqueue(domain.TaskExpireStale)
		}
	}
}
