package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/torqueworks/torqueworks/jobs"
)

// Inspector is the subset of *asynq.Inspector the CLI reads from.
type Inspector interface {
	jobs.QueueInspector
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector Inspector
	closers   []io.Closer
}

// NewJobsCLI connects the CLI helpers to the queue's Redis.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{
		client:    jobs.NewClient(client),
		inspector: inspector,
		closers:   []io.Closer{client, inspector},
	}
}

// NewJobsCLIWith builds the helpers over existing components.
func NewJobsCLIWith(client *jobs.Client, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.Trigger(ctx, name)
}

// InspectQueues reports the metrics of every worker queue.
func (c *JobsCLI) InspectQueues() ([]jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []jobs.QueueStats
	for _, q := range []string{jobs.QueueCritical, jobs.QueueDefault} {
		info, err := c.inspector.GetQueueInfo(q)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			out = append(out, jobs.QueueStats{Queue: q})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", q, err)
		}
		out = append(out, jobs.QueueStats{
			Queue:     q,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
		})
	}
	return out, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// Run executes `jobs <subcommand>` and returns the process exit code.
func (c *JobsCLI) Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: torque jobs trigger <name> | stats | scheduled")
		return 2
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "usage: torque jobs trigger <overdue-sweep|idempotency-cleanup>")
			return 2
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(stderr, "trigger %s: %v\n", args[1], err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := c.InspectQueues()
		if err != nil {
			fmt.Fprintf(stderr, "stats: %v\n", err)
			return 1
		}
		for _, s := range stats {
			fmt.Fprintf(stdout, "%-9s pending=%d active=%d scheduled=%d retry=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
		}
		return 0
	case "scheduled":
		tasks, err := c.ListScheduled(20)
		if err != nil {
			fmt.Fprintf(stderr, "scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			fmt.Fprintf(stdout, "%s %s at %s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05Z07:00"))
		}
		return 0
	default:
		fmt.Fprintf(stderr, "unknown jobs subcommand %q\n", args[0])
		return 2
	}
}
