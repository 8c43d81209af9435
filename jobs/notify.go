package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/torqueworks/torqueworks/internal/jobs"
)

// NotifyJob hands events to the customer notification channel. Delivery
// providers are not integrated; the job records the hand-off.
type NotifyJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotifyJob constructs the notification handler.
func NewNotifyJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotifyDispatch tasks.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(TaskNotifyDispatch)
	defer func() { err = tracker.End(err) }()

	evt, err := decodeEvent(t)
	if err != nil {
		return err
	}
	attrs := []any{
		slog.String("event_id", evt.ID),
		slog.String("kind", string(evt.Kind)),
		slog.Int64("entity_id", evt.EntityID),
		slog.String("summary", evt.Summary),
	}
	if evt.CustomerID == 0 {
		j.Logger.Info("event has no recipient", attrs...)
		return nil
	}
	attrs = append(attrs, slog.Int64("customer_id", evt.CustomerID))
	for k, v := range evt.Data {
		attrs = append(attrs, slog.String("data."+k, v))
	}
	j.Logger.Info("notification dispatched", attrs...)
	j.Metrics.AddItems(TaskNotifyDispatch, 1)
	return nil
}
