package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/torqueworks/torqueworks/internal/jobs"
	"github.com/torqueworks/torqueworks/jobs"
)

type slowMarker struct {
	delay time.Duration
	err   error
}

func (m slowMarker) MarkOverdue(ctx context.Context, _ time.Time) (int, error) {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return 2, m.err
}

func TestOverdueSweepThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	task, err := jobs.NewOverdueSweepTask(nil)
	if err != nil {
		t.Fatal(err)
	}

	healthy := jobs.NewOverdueSweepJob(slowMarker{delay: 5 * time.Millisecond}, nil, metrics)
	for i := 0; i < 30; i++ {
		if err := healthy.Handle(context.Background(), task); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	failing := jobs.NewOverdueSweepJob(slowMarker{delay: time.Millisecond, err: errors.New("timeout")}, nil, metrics)
	for i := 0; i < 2; i++ {
		if err := failing.Handle(context.Background(), task); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	labels := map[string]string{"job": jobs.TaskInvoicesOverdueSweep}
	success := metricValue(t, families, "torque_jobs_total", map[string]string{"job": jobs.TaskInvoicesOverdueSweep, "status": "success"})
	failure := metricValue(t, families, "torque_jobs_total", map[string]string{"job": jobs.TaskInvoicesOverdueSweep, "status": "failure"})
	if success != 30 || failure != 2 {
		t.Fatalf("unexpected run counts success=%v failure=%v", success, failure)
	}
	if items := metricValue(t, families, "torque_job_items_total", labels); items != 64 {
		t.Fatalf("expected 64 flagged invoices, got %v", items)
	}
	if mean := histogramMean(t, families, "torque_job_duration_seconds", labels); mean > 0.5 {
		t.Fatalf("sweep duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			h := metric.GetHistogram()
			if h.GetSampleCount() == 0 {
				return 0
			}
			return h.GetSampleSum() / float64(h.GetSampleCount())
		}
	}
	t.Fatalf("histogram %s not found", name)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
