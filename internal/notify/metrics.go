package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricNotificationsDispatchedTotal = "notifications_dispatched_total"
	MetricPushRelaysTotal              = "push_relays_total"
	MetricPushRelaysSkippedTotal       = "push_relays_skipped_total"
)

// Metrics contains Prometheus metrics for notification dispatch.
// All operations are thread-safe.
type Metrics struct {
	dispatched   *prometheus.CounterVec
	relayed      *prometheus.CounterVec
	relaySkipped *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered; call Register
// to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNotificationsDispatchedTotal,
				Help: "Total in-app notification writes by category and status",
			},
			[]string{"category", "status"},
		),
		relayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPushRelaysTotal,
				Help: "Total push relay attempts by category and status",
			},
			[]string{"category", "status"},
		),
		relaySkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPushRelaysSkippedTotal,
				Help: "Total push relays skipped by category and reason",
			},
			[]string{"category", "reason"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.dispatched, m.relayed, m.relaySkipped} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncDispatched increments the durable-write counter.
func (m *Metrics) IncDispatched(category, status string) {
	m.dispatched.WithLabelValues(category, status).Inc()
}

// IncRelayed increments the relay attempt counter.
func (m *Metrics) IncRelayed(category, status string) {
	m.relayed.WithLabelValues(category, status).Inc()
}

// IncRelaySkipped increments the skipped-relay counter.
func (m *Metrics) IncRelaySkipped(category, reason string) {
	m.relaySkipped.WithLabelValues(category, reason).Inc()
}
