package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/torqueworks/torqueworks/internal/events"
	jobmetrics "github.com/torqueworks/torqueworks/internal/jobs"
)

// CompletedOrderHandler consumes workorder.completed events.
type CompletedOrderHandler interface {
	HandleWorkOrderCompleted(ctx context.Context, evt events.Event) error
}

// BillingJob invoices completed work orders in the background.
type BillingJob struct {
	Handler CompletedOrderHandler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBillingJob constructs the auto-invoice handler.
func NewBillingJob(handler CompletedOrderHandler, logger *slog.Logger, metrics *jobmetrics.Metrics) *BillingJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingJob{Handler: handler, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBillingGenerateInvoice tasks. Failures are retried by
// Asynq; an already invoiced order is treated as done by the handler.
func (j *BillingJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskBillingGenerateInvoice)
	defer func() { err = tracker.End(err) }()

	evt, err := decodeEvent(t)
	if err != nil {
		return err
	}
	if err := j.Handler.HandleWorkOrderCompleted(ctx, evt); err != nil {
		j.Logger.Error("auto-invoice failed",
			slog.Int64("work_order_id", evt.EntityID),
			slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskBillingGenerateInvoice, 1)
	return nil
}
