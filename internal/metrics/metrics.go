// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine records into. A nil
// *Metrics is valid and records nothing, so tests and embedders can
// skip registration.
type Metrics struct {
	Turns          *prometheus.CounterVec
	FallbackTiers  *prometheus.CounterVec
	Steps          *prometheus.CounterVec
	PendingCreated prometheus.Counter
	PendingCleared prometheus.Counter
	TurnLatency    prometheus.Histogram
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortexagent",
			Name:      "turns_total",
			Help:      "Turns processed, by terminal decision action.",
		}, []string{"action"}),
		FallbackTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortexagent",
			Name:      "fallback_tier_total",
			Help:      "Planning strategy that produced each executed plan.",
		}, []string{"tier"}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortexagent",
			Name:      "pipeline_steps_total",
			Help:      "Executed pipeline steps, by capability and status.",
		}, []string{"action", "status"}),
		PendingCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cortexagent",
			Name:      "pending_actions_created_total",
			Help:      "Pending actions parked for confirmation.",
		}),
		PendingCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cortexagent",
			Name:      "pending_actions_cleared_total",
			Help:      "Pending actions resolved by confirm or cancel.",
		}),
		TurnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cortexagent",
			Name:      "turn_seconds",
			Help:      "End-to-end turn latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	reg.MustRegister(m.Turns, m.FallbackTiers, m.Steps, m.PendingCreated, m.PendingCleared, m.TurnLatency)
	return m
}

func (m *Metrics) RecordTurn(action string, seconds float64) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(action).Inc()
	m.TurnLatency.Observe(seconds)
}

func (m *Metrics) RecordTier(tier string) {
	if m == nil {
		return
	}
	m.FallbackTiers.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordStep(action, status string) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(action, status).Inc()
}

func (m *Metrics) RecordPendingCreated() {
	if m == nil {
		return
	}
	m.PendingCreated.Inc()
}

func (m *Metrics) RecordPendingCleared(n int) {
	if m == nil {
		return
	}
	m.PendingCleared.Add(float64(n))
}
