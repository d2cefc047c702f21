package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsTriggersAndJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	waiting := 3
	m := New(reg, func() int { return waiting })

	m.Trigger(OutcomeAccepted)
	m.Trigger(OutcomeAccepted)
	m.Trigger(OutcomeDeduped)

	m.JobStarted()
	m.JobStarted()
	m.JobFinished("open_daily", "succeeded", 150*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.triggersTotal.WithLabelValues(OutcomeAccepted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.triggersTotal.WithLabelValues(OutcomeDeduped)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsInProgress))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsCompletedTotal.WithLabelValues("open_daily", "succeeded")))

	expected := `
# HELP portal_queue_length Current number of jobs waiting for a worker
# TYPE portal_queue_length gauge
portal_queue_length 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "portal_queue_length"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Trigger(OutcomeUnauthorized)
		m.JobStarted()
		m.JobFinished("hydration", "failed", time.Second)
	})
}
