package whatif

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	phaseQEP = "qep"
	phaseAQP = "aqp"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

type metrics struct {
	oracleCalls       *prometheus.CounterVec
	resetFailures     prometheus.Counter
	mismatches        prometheus.Counter
	contradictions    prometheus.Counter
	costChangePercent prometheus.Histogram
	state             prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, logger log.Logger) *metrics {
	m := &metrics{
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatif_oracle_calls_total",
			Help: "Plan retrievals from the optimizer by phase and outcome.",
		}, []string{"phase", "outcome"}),
		resetFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatif_oracle_reset_failures_total",
			Help: "Plan retrievals after which the optimizer configuration could not be restored.",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatif_operator_mismatches_total",
			Help: "Requested operators the optimizer did not use.",
		}),
		contradictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whatif_contradicting_requests_total",
			Help: "Switch families with requests for different operators in one cycle.",
		}),
		costChangePercent: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whatif_cost_change_percent",
			Help:    "Change of the estimated plan cost caused by a what-if cycle, in percent of the original cost.",
			Buckets: []float64{-90, -75, -50, -25, -10, 0, 10, 25, 50, 100, 250, 1000},
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whatif_state",
			Help: "Current state of the what-if cycle (0 is Idle).",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.oracleCalls,
			m.resetFailures,
			m.mismatches,
			m.contradictions,
			m.costChangePercent,
			m.state,
		)
	} else {
		level.Debug(logger).Log("msg", "no Prometheus registry provided, metrics will not be exposed")
	}
	return m
}
