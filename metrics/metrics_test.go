package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Decision("place_order", "rejected", "DAILY_LOSS_LIMIT")
	m.Decision("place_order", "rejected", "DAILY_LOSS_LIMIT")
	m.Decision("place_order", "filled", "")
	m.Iteration()
	m.Risk(-1250.5, 2)
	m.Phase("trading")
	m.Interval(90 * time.Second)
	m.SolverSteps(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("place_order", "rejected", "DAILY_LOSS_LIMIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("place_order", "filled", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.iterations))
	assert.Equal(t, -1250.5, testutil.ToFloat64(m.dailyPnL))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.openPos))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phase.WithLabelValues("trading")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.phase.WithLabelValues("pre_market")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.interval))

	n, err := testutil.GatherAndCount(reg, "odta_iv_solver_iterations")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Decision("a", "b", "c")
		m.Iteration()
		m.Risk(1, 1)
		m.Phase("done")
		m.Interval(time.Second)
		m.SolverSteps(1)
	})
}
