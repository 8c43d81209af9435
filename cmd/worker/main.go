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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/torqueworks/torqueworks/internal/app"
	"github.com/torqueworks/torqueworks/internal/observability"
	"github.com/torqueworks/torqueworks/internal/platform/cache"
	"github.com/torqueworks/torqueworks/internal/platform/db"
	"github.com/torqueworks/torqueworks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.RedisOptions().Asynq()
	queue := asynq.NewClient(redisOpts)
	defer queue.Close()

	metrics := observability.NewMetrics()
	jobLogger := logger.With(slog.String("module", "jobs"))
	// Events raised while handling tasks (invoice.generated, invoice.overdue)
	// go back through the queue; auto-invoicing is only triggered by the API.
	services, err := app.BuildServices(cfg, app.ServiceDeps{
		Pool:      pool,
		Redis:     redisClient,
		Publisher: jobs.NewPublisher(queue, false, jobLogger),
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}

	notifyJob := jobs.NewNotifyJob(jobLogger, metrics.Jobs)
	billingJob := jobs.NewBillingJob(services.Billing, jobLogger, metrics.Jobs)
	overdueJob := jobs.NewOverdueSweepJob(services.Invoices, jobLogger, metrics.Jobs)
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     services.Idempotency,
		Retention: cfg.IdempotencyRetention,
		Logger:    jobLogger,
		Metrics:   metrics.Jobs,
	}

	overdueTask, err := jobs.NewOverdueSweepTask(nil)
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      jobLogger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotifyDispatch, Handler: notifyJob.Handle},
			{Type: jobs.TaskBillingGenerateInvoice, Handler: billingJob.Handle},
			{Type: jobs.TaskInvoicesOverdueSweep, Handler: overdueJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.OverdueSweepSpec, Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: jobs.IdempotencyCleanupSpec, Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.WorkerMetricsAddr != "" {
		srv := metricsServer(cfg.WorkerMetricsAddr, metrics)
		g.Go(func() error {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// metricsServer exposes job metrics so the stale-sweep alert can see the worker.
func metricsServer(addr string, metrics *observability.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", metrics.Handler())
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}
