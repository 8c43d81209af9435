package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqueworks/torqueworks/internal/events"
	jobmetrics "github.com/torqueworks/torqueworks/internal/jobs"
)

type stubMarker struct {
	asOf    time.Time
	flagged int
	err     error
}

func (s *stubMarker) MarkOverdue(_ context.Context, now time.Time) (int, error) {
	s.asOf = now
	return s.flagged, s.err
}

func TestOverdueSweepDefaultsToClock(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	marker := &stubMarker{flagged: 3}
	job := NewOverdueSweepJob(marker, discardLogger(), metrics)
	job.clock = func() time.Time { return eventTime }

	task, err := NewOverdueSweepTask(nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, eventTime, marker.asOf)
	assert.Equal(t, 3.0, counterValue(t, registry, "torque_job_items_total", TaskInvoicesOverdueSweep))
}

func counterValue(t *testing.T, g prometheus.Gatherer, name, job string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "job" && lp.GetValue() == job {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestOverdueSweepHonoursAsOf(t *testing.T) {
	marker := &stubMarker{}
	job := NewOverdueSweepJob(marker, discardLogger(), nil)
	pinned := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	task, err := NewOverdueSweepTask(&pinned)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, pinned, marker.asOf)
}

func TestOverdueSweepPropagatesFailure(t *testing.T) {
	marker := &stubMarker{err: errors.New("db gone"), flagged: 1}
	job := NewOverdueSweepJob(marker, discardLogger(), nil)
	task, err := NewOverdueSweepTask(nil)
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskInvoicesOverdueSweep, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

type recordingConsumer struct {
	mu   sync.Mutex
	seen []events.Event
	err  error
}

func (r *recordingConsumer) HandleWorkOrderCompleted(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, evt)
	return r.err
}

func TestBillingJobDelegatesEvent(t *testing.T) {
	consumer := &recordingConsumer{}
	job := NewBillingJob(consumer, discardLogger(), nil)
	evt := events.New(events.KindWorkOrderCompleted, 42, "", eventTime)
	task, err := NewEventTask(TaskBillingGenerateInvoice, evt)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, consumer.seen, 1)
	assert.Equal(t, int64(42), consumer.seen[0].EntityID)

	consumer.err = errors.New("locked")
	require.Error(t, job.Handle(context.Background(), task))

	garbage := asynq.NewTask(TaskBillingGenerateInvoice, []byte("not json"))
	require.ErrorIs(t, job.Handle(context.Background(), garbage), asynq.SkipRetry)
}

func TestNotifyJobHandlesEvents(t *testing.T) {
	job := NewNotifyJob(discardLogger(), nil)
	evt := events.New(events.KindInvoiceOverdue, 3, "20250110", eventTime).With("number", "INV-20250110-001")
	evt.CustomerID = 9
	task, err := NewEventTask(TaskNotifyDispatch, evt)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	orphan, err := NewEventTask(TaskNotifyDispatch, events.New(events.KindWorkOrderCreated, 1, "", eventTime))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), orphan))
}

type stubPruner struct{ retention time.Duration }

func (s *stubPruner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return 3, nil
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	registry := prometheus.NewRegistry()
	store := &stubPruner{}
	job := &IdempotencyCleanupJob{Store: store, Retention: 48 * time.Hour, Metrics: jobmetrics.NewMetrics(registry)}
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, 48*time.Hour, store.retention)
	assert.Equal(t, 3.0, counterValue(t, registry, "torque_job_items_total", TaskIdempotencyCleanup))

	job.Retention = 0
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, 7*24*time.Hour, store.retention)
}
