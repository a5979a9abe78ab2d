package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountersRegistered(t *testing.T) {
	m := New()

	m.SchedulerFires.WithLabelValues("open", "ok").Inc()
	m.SchedulerFires.WithLabelValues("open", "ok").Inc()
	m.SlotOperations.WithLabelValues("claim", "SLOT_TAKEN").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SchedulerFires.WithLabelValues("open", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SlotOperations.WithLabelValues("claim", "SLOT_TAKEN")))

	n, err := testutil.GatherAndCount(m.Registry(), "scrims_scheduler_fires_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
