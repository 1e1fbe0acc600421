// Package metrics defines the Prometheus collectors the bot fleet updates
// during operation. They are served in text exposition format at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles all collectors on a private registry so tests can build
// isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	Ticks       *prometheus.CounterVec
	Signals     *prometheus.CounterVec
	Trades      *prometheus.CounterVec
	Halts       *prometheus.CounterVec
	TickErrors  *prometheus.CounterVec
	Value       *prometheus.GaugeVec
	DailyReturn *prometheus.GaugeVec
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blingbot_ticks_total",
				Help: "Ticks executed, split by outcome.",
			},
			[]string{"bot", "outcome"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blingbot_signals_total",
				Help: "Signals committed after the persistence rule, by value.",
			},
			[]string{"bot", "signal"},
		),
		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blingbot_trades_total",
				Help: "Position transitions sent to the broker.",
			},
			[]string{"bot", "side"},
		),
		Halts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blingbot_halts_total",
				Help: "Risk halts, by trigger.",
			},
			[]string{"bot", "reason"},
		),
		TickErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blingbot_tick_errors_total",
				Help: "Ticks that ended with a transient error.",
			},
			[]string{"bot"},
		),
		Value: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blingbot_value",
				Help: "Current paper value per bot.",
			},
			[]string{"bot"},
		),
		DailyReturn: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blingbot_daily_return",
				Help: "Fractional return since the day-start baseline per bot.",
			},
			[]string{"bot"},
		),
	}

	m.registry.MustRegister(
		m.Ticks, m.Signals, m.Trades, m.Halts, m.TickErrors, m.Value, m.DailyReturn,
	)
	return m
}

// Registry exposes the underlying registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
