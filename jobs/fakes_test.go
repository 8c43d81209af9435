package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
)

type enqueued struct {
	task *asynq.Task
	id   string
}

// fakeEnqueuer mimics Asynq's task ID uniqueness.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueued
	seen  map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var id, queue string
	for _, o := range opts {
		switch o.Type() {
		case asynq.TaskIDOpt:
			id = o.Value().(string)
		case asynq.QueueOpt:
			queue = o.Value().(string)
		}
	}
	if id == "" {
		id = task.Type()
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[id] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[id] = true
	f.tasks = append(f.tasks, enqueued{task: task, id: id})
	return &asynq.TaskInfo{ID: id, Queue: queue, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.task.Type())
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
