package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/torqueworks/torqueworks/internal/jobs"
)

// OverdueMarker flags sent invoices past due as of now.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// OverdueSweepJob runs the periodic overdue sweep.
type OverdueSweepJob struct {
	Invoices OverdueMarker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewOverdueSweepJob initialises the sweep handler.
func NewOverdueSweepJob(invoices OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Invoices: invoices,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invoices == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload OverdueSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode sweep payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := j.now()
	if payload.AsOf != nil {
		asOf = payload.AsOf.UTC()
	}

	tracker := j.Metrics.Track(TaskInvoicesOverdueSweep)
	logger := j.logger().With(slog.Time("as_of", asOf))

	flagged, err := j.Invoices.MarkOverdue(ctx, asOf)
	j.Metrics.AddItems(TaskInvoicesOverdueSweep, flagged)
	if err != nil {
		logger.Error("overdue sweep failed", slog.Int("flagged", flagged), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("overdue sweep completed", slog.Int("flagged", flagged))
	return tracker.End(nil)
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
