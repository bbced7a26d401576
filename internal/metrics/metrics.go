// Package metrics holds the Prometheus collectors for authentication,
// route guards and asset writes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the application counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	GuardDecisions  *prometheus.CounterVec
	AssetOperations *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_tracker_login_attempts_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		GuardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_tracker_guard_decisions_total",
				Help: "Total number of route guard decisions by guard and outcome",
			},
			[]string{"guard", "outcome"},
		),
		AssetOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_tracker_asset_operations_total",
				Help: "Total number of asset operations by operation and result",
			},
			[]string{"op", "result"},
		),
	}

	reg.MustRegister(m.LoginAttempts)
	reg.MustRegister(m.GuardDecisions)
	reg.MustRegister(m.AssetOperations)

	return m
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordGuard(guard, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(guard, outcome).Inc()
}

func (m *Metrics) RecordAssetOp(op, result string) {
	if m == nil {
		return
	}
	m.AssetOperations.WithLabelValues(op, result).Inc()
}
