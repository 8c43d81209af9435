package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/torqueworks/torqueworks/internal/ar"
	"github.com/torqueworks/torqueworks/internal/audit"
	"github.com/torqueworks/torqueworks/internal/billing"
	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/observability"
	"github.com/torqueworks/torqueworks/internal/scheduling"
	"github.com/torqueworks/torqueworks/internal/workorders"
	"github.com/torqueworks/torqueworks/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error

	AppointmentHandler *scheduling.Handler
	WorkOrderHandler   *workorders.Handler
	BillingHandler     *billing.Handler
	InvoiceHandler     *invoicing.Handler
	AuditHandler       *audit.Handler
	ReceivableHandler  *ar.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router for the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r.Context()); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	if params.AppointmentHandler != nil {
		r.Route("/appointments", params.AppointmentHandler.MountRoutes)
	}
	r.Route("/work-orders", func(r chi.Router) {
		if params.WorkOrderHandler != nil {
			params.WorkOrderHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
	})
	if params.InvoiceHandler != nil {
		r.Route("/invoices", params.InvoiceHandler.MountRoutes)
	}
	if params.ReceivableHandler != nil {
		r.Route("/receivables", params.ReceivableHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
