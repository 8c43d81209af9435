package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/torqueworks/torqueworks/cmd/torque/cli"
	"github.com/torqueworks/torqueworks/internal/app"
	"github.com/torqueworks/torqueworks/internal/ar"
	"github.com/torqueworks/torqueworks/internal/audit"
	"github.com/torqueworks/torqueworks/internal/billing"
	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/observability"
	"github.com/torqueworks/torqueworks/internal/platform/cache"
	"github.com/torqueworks/torqueworks/internal/platform/db"
	"github.com/torqueworks/torqueworks/internal/scheduling"
	"github.com/torqueworks/torqueworks/internal/workorders"
	"github.com/torqueworks/torqueworks/jobs"
)

const usage = `usage: torque [command]

commands:
  serve                 run the HTTP API (default)
  migrate               apply database migrations
  jobs trigger <name>   enqueue overdue-sweep or idempotency-cleanup
  jobs stats            show queue statistics
  jobs scheduled        list scheduled tasks`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		migrate := flag.NewFlagSet("serve", flag.ExitOnError)
		autoMigrate := migrate.Bool("migrate", false, "apply migrations before serving")
		_ = migrate.Parse(args)
		if err := serve(ctx, cfg, logger, *autoMigrate); err != nil {
			logger.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	case "migrate":
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	case "jobs":
		jobsCLI := cli.NewJobsCLI(cfg.RedisOptions().Asynq())
		code := jobsCLI.Run(ctx, args, os.Stdout, os.Stderr)
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("close jobs cli", slog.Any("error", err))
		}
		os.Exit(code)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, autoMigrate bool) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()
	if autoMigrate {
		if err := db.Migrate(ctx, dbpool, logger); err != nil {
			return err
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.RedisOptions().Asynq()
	queue := asynq.NewClient(redisOpts)
	defer queue.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services, err := app.BuildServices(cfg, app.ServiceDeps{
		Pool:      dbpool,
		Redis:     redisClient,
		Publisher: jobs.NewPublisher(queue, cfg.BillingAutoInvoice, logger.With(slog.String("module", "jobs"))),
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Ready:              readiness(dbpool, redisClient),
		AppointmentHandler: scheduling.NewHandler(logger, services.Appointments),
		WorkOrderHandler:   workorders.NewHandler(logger, services.WorkOrders),
		BillingHandler:     billing.NewHandler(logger, services.Billing),
		InvoiceHandler:     invoicing.NewHandler(logger, services.Invoices),
		ReceivableHandler:  ar.NewHandler(logger, ar.NewService(ar.NewRepository(dbpool))),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:         jobs.NewHandler(inspector, jobs.NewClient(queue), logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func readiness(pool *pgxpool.Pool, client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		return client.Ping(ctx).Err()
	}
}
