package jobmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }

	assert.NoError(t, m.Track("sweep").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("sweep").End(boom), boom)
	m.AddItems("sweep", 3)
	m.AddItems("sweep", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sweep", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sweep", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("sweep")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("sweep")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("sweep")))
}

func TestFailureLeavesLastSuccessUntouched(t *testing.T) {
	m := NewMetrics(nil)
	require.Error(t, m.Track("cleanup").End(errors.New("redis down")))
	assert.Zero(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("cleanup")))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddItems("x", 1)
}
