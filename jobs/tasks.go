package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/torqueworks/torqueworks/internal/events"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries billing work that should not wait behind notifications.
	QueueCritical = "critical"

	// TaskNotifyDispatch hands a shop event to the notification channel.
	TaskNotifyDispatch = "notify:dispatch"
	// TaskBillingGenerateInvoice invoices a completed work order.
	TaskBillingGenerateInvoice = "billing:generate_invoice"
	// TaskInvoicesOverdueSweep flags sent invoices past their due date.
	TaskInvoicesOverdueSweep = "invoices:overdue_sweep"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// OverdueSweepSpec runs the sweep at the top of every hour.
	OverdueSweepSpec = "0 * * * *"
	// IdempotencyCleanupSpec runs the cleanup once a day.
	IdempotencyCleanupSpec = "30 3 * * *"
)

// OverdueSweepPayload optionally pins the sweep to a reference time.
type OverdueSweepPayload struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// NewEventTask wraps evt into a task of the given type.
func NewEventTask(taskType string, evt events.Event) (*asynq.Task, error) {
	if evt.ID == "" {
		return nil, fmt.Errorf("jobs: event %s has no id", evt.Kind)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// NewOverdueSweepTask builds the overdue sweep task. A nil asOf sweeps
// relative to the time the task runs.
func NewOverdueSweepTask(asOf *time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(OverdueSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoicesOverdueSweep, data), nil
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

func decodeEvent(t *asynq.Task) (events.Event, error) {
	var evt events.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return events.Event{}, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return evt, nil
}
