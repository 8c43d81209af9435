package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/torqueworks/torqueworks/internal/jobs"
)

// KeyPruner deletes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes processed request keys.
type IdempotencyCleanupJob struct {
	Store     KeyPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	retention := j.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	pruned, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("idempotency cleanup", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	j.Metrics.AddItems(TaskIdempotencyCleanup, int(pruned))
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned",
			slog.Int64("count", pruned),
			slog.Duration("retention", retention))
	}
	return tracker.End(nil)
}
