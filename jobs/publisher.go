package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/torqueworks/torqueworks/internal/events"
)

// Enqueuer is the subset of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher delivers shop events to the worker through Asynq. Task IDs derive
// from the event ID, so publishing the same event twice enqueues it once.
type Publisher struct {
	enqueuer    Enqueuer
	autoInvoice bool
	logger      *slog.Logger
}

// NewPublisher constructs a Publisher. With autoInvoice set, completed work
// orders also enqueue an invoice generation task.
func NewPublisher(enqueuer Enqueuer, autoInvoice bool, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{enqueuer: enqueuer, autoInvoice: autoInvoice, logger: logger}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, evt events.Event) error {
	if err := p.enqueue(ctx, TaskNotifyDispatch, evt, asynq.Queue(QueueDefault), asynq.MaxRetry(5)); err != nil {
		return err
	}
	if p.autoInvoice && evt.Kind == events.KindWorkOrderCompleted {
		return p.enqueue(ctx, TaskBillingGenerateInvoice, evt, asynq.Queue(QueueCritical), asynq.MaxRetry(10))
	}
	return nil
}

func (p *Publisher) enqueue(ctx context.Context, taskType string, evt events.Event, opts ...asynq.Option) error {
	task, err := NewEventTask(taskType, evt)
	if err != nil {
		return err
	}
	opts = append(opts, asynq.TaskID(taskType+":"+evt.ID))
	info, err := p.enqueuer.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		p.logger.Debug("task already enqueued", slog.String("type", taskType), slog.String("event_id", evt.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	p.logger.Debug("task enqueued",
		slog.String("type", taskType),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue))
	return nil
}
