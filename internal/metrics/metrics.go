// Package metrics holds the Prometheus collectors for job reconciliation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Callbacks     *prometheus.CounterVec // labels: kind, outcome
	Placements    *prometheus.CounterVec // labels: outcome
	ReaperCancels *prometheus.CounterVec // labels: outcome
	LiveJobs      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depotbroker_callbacks_total",
			Help: "Exchange callbacks processed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		Placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depotbroker_placements_total",
			Help: "Sub-order placement calls to the exchange, by outcome",
		}, []string{"outcome"}),
		ReaperCancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depotbroker_reaper_cancels_total",
			Help: "Cancellation nudges sent by the timeout reaper, by outcome",
		}, []string{"outcome"}),
		LiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depotbroker_live_jobs",
			Help: "Jobs recorded and not yet completed or deleted",
		}),
	}

	reg.MustRegister(m.Callbacks, m.Placements, m.ReaperCancels, m.LiveJobs)
	return m
}

// Callback counts one processed callback.
func (m *Metrics) Callback(kind, outcome string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(kind, outcome).Inc()
}

// Placement counts one placement call.
func (m *Metrics) Placement(outcome string) {
	if m == nil {
		return
	}
	m.Placements.WithLabelValues(outcome).Inc()
}

// ReaperCancel counts one reaper nudge.
func (m *Metrics) ReaperCancel(outcome string) {
	if m == nil {
		return
	}
	m.ReaperCancels.WithLabelValues(outcome).Inc()
}

// JobsAdded adjusts the live jobs gauge.
func (m *Metrics) JobsAdded(n int) {
	if m == nil {
		return
	}
	m.LiveJobs.Add(float64(n))
}

// JobsRemoved adjusts the live jobs gauge.
func (m *Metrics) JobsRemoved(n int) {
	if m == nil {
		return
	}
	m.LiveJobs.Sub(float64(n))
}
