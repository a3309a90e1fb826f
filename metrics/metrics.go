// Package metrics exposes the control loop's Prometheus series:
//
//	odta_gate_decisions_total{kind,status,code}  gate outcomes
//	odta_iterations_total                        trading iterations run
//	odta_daily_pnl_rupees                        realized + unrealized P&L
//	odta_open_positions                          open position count
//	odta_phase{phase}                            1 for the current phase
//	odta_interval_seconds                        wait before the next iteration
//	odta_iv_solver_iterations                    Newton steps per IV solve
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var phases = []string{"pre_market", "trading", "stopping", "end_of_day", "done"}

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	decisions   *prometheus.CounterVec
	iterations  prometheus.Counter
	dailyPnL    prometheus.Gauge
	openPos     prometheus.Gauge
	phase       *prometheus.GaugeVec
	interval    prometheus.Gauge
	solverSteps prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odta_gate_decisions_total",
				Help: "Execution gate outcomes by action kind, status and rejection code.",
			},
			[]string{"kind", "status", "code"},
		),
		iterations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "odta_iterations_total",
				Help: "Trading loop iterations run.",
			},
		),
		dailyPnL: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "odta_daily_pnl_rupees",
				Help: "Realized plus unrealized P&L for the day.",
			},
		),
		openPos: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "odta_open_positions",
				Help: "Open positions.",
			},
		),
		phase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "odta_phase",
				Help: "Current phase of the trading day (1 for the active phase).",
			},
			[]string{"phase"},
		),
		interval: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "odta_interval_seconds",
				Help: "Wait before the next trading iteration.",
			},
		),
		solverSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "odta_iv_solver_iterations",
				Help:    "Newton-Raphson steps taken per implied volatility solve.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.iterations, m.dailyPnL, m.openPos, m.phase, m.interval, m.solverSteps)
	}
	return m
}

func (m *Metrics) Decision(kind, status, code string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind, status, code).Inc()
}

func (m *Metrics) Iteration() {
	if m == nil {
		return
	}
	m.iterations.Inc()
}

func (m *Metrics) Risk(dailyPnL float64, open int) {
	if m == nil {
		return
	}
	m.dailyPnL.Set(dailyPnL)
	m.openPos.Set(float64(open))
}

func (m *Metrics) Phase(current string) {
	if m == nil {
		return
	}
	for _, p := range phases {
		v := 0.0
		if p == current {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

func (m *Metrics) Interval(d time.Duration) {
	if m == nil {
		return
	}
	m.interval.Set(d.Seconds())
}

func (m *Metrics) SolverSteps(n int) {
	if m == nil {
		return
	}
	m.solverSteps.Observe(float64(n))
}
