package app

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/torqueworks/torqueworks/internal/billing"
	"github.com/torqueworks/torqueworks/internal/directory"
	"github.com/torqueworks/torqueworks/internal/events"
	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/observability"
	"github.com/torqueworks/torqueworks/internal/platform/cache"
	"github.com/torqueworks/torqueworks/internal/scheduling"
	"github.com/torqueworks/torqueworks/internal/shared"
	"github.com/torqueworks/torqueworks/internal/workorders"
)

// Services is the wired domain layer shared by the API server and the worker.
type Services struct {
	Appointments *scheduling.Service
	WorkOrders   *workorders.Service
	Invoices     *invoicing.Service
	Billing      *billing.Pipeline
	Idempotency  *shared.IdempotencyStore
}

// ServiceDeps carries the infrastructure the services are built on.
type ServiceDeps struct {
	Pool      *pgxpool.Pool
	Redis     redis.UniversalClient
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// BuildServices wires repositories, ports and services from cfg.
func BuildServices(cfg *Config, deps ServiceDeps) (*Services, error) {
	shop, err := cfg.Shop()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Discard{}
	}
	var domain *observability.DomainMetrics
	if deps.Metrics != nil {
		domain = deps.Metrics.Domain
	}

	store := directory.NewStore(deps.Pool)
	idempotency := shared.NewIdempotencyStore(deps.Pool)
	auditor := shared.NewAuditLogger(deps.Pool)

	appointments := scheduling.NewService(scheduling.NewRepository(deps.Pool), publisher, logger.With(slog.String("module", "scheduling")))
	orders := workorders.NewService(
		workorders.NewRepository(deps.Pool),
		store,
		directory.NewDedupedCatalog(store),
		shop.WorkOrderDefaults(),
		logger.With(slog.String("module", "workorders")),
	)
	orders.SetPublisher(publisher)

	var locker invoicing.Locker = shared.NewKeyedMutex()
	if deps.Redis != nil {
		locker = cache.NewRedisLocker(deps.Redis, cfg.LockTTL, 50*time.Millisecond)
	}
	invoices := invoicing.NewService(
		invoicing.NewRepository(deps.Pool),
		locker,
		shop.InvoiceOptions(cfg.InvoiceNumberMaxAttempts),
		logger.With(slog.String("module", "invoicing")),
	)
	invoices.SetPublisher(publisher)
	invoices.SetIdempotencyStore(idempotency)
	invoices.SetAuditor(auditor)

	if domain != nil {
		appointments.SetMetrics(domain)
		orders.SetMetrics(domain)
		invoices.SetMetrics(domain)
	}

	return &Services{
		Appointments: appointments,
		WorkOrders:   orders,
		Invoices:     invoices,
		Billing:      billing.NewPipeline(orders, invoices, logger.With(slog.String("module", "billing"))),
		Idempotency:  idempotency,
	}, nil
}
