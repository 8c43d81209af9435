// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the job collectors. A nil *Metrics records nothing, so
// handlers can be built without instrumentation in tests.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec

	now func() time.Time
}

// NewMetrics registers the job collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torque_jobs_total",
			Help: "Job executions by task type and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torque_jobs_failures_total",
			Help: "Failed job executions by task type.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "torque_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torque_job_items_total",
			Help: "Records a job acted on, such as invoices flagged overdue or keys pruned.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "torque_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"job"}),
		now: time.Now,
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.failures, m.duration, m.items, m.lastSuccess)
	}
	return m
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{metrics: m, job: job}
	if m != nil {
		t.start = m.now()
	}
	return t
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	finished := m.now()
	m.duration.WithLabelValues(t.job).Observe(finished.Sub(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, "failure").Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, "success").Inc()
	m.lastSuccess.WithLabelValues(t.job).Set(float64(finished.Unix()))
	return nil
}

// AddItems counts records a job run acted on.
func (m *Metrics) AddItems(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(job).Add(float64(count))
}
