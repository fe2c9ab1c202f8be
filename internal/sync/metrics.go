package sync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trailmark-app/trailmark/internal/record"
)

// Metric names as constants for consistency.
const (
	MetricRecordsPushedTotal  = "sync_records_pushed_total"
	MetricRecordsMergedTotal  = "sync_records_merged_total"
	MetricPushErrorsTotal     = "sync_push_errors_total"
	MetricPassDurationSeconds = "sync_pass_duration_seconds"
)

// Metrics contains Prometheus metrics for reconciliation passes.
// All operations are thread-safe.
type Metrics struct {
	pushed       *prometheus.CounterVec
	merged       *prometheus.CounterVec
	pushErrors   *prometheus.CounterVec
	passDuration prometheus.Histogram
}

// NewMetrics creates the collectors. They are not registered; call Register
// to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		pushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRecordsPushedTotal,
				Help: "Total number of local records pushed to the remote store by kind",
			},
			[]string{"kind"},
		),
		merged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRecordsMergedTotal,
				Help: "Total number of local records rebound to an existing remote record by kind",
			},
			[]string{"kind"},
		),
		pushErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPushErrorsTotal,
				Help: "Total number of per-item push failures by kind",
			},
			[]string{"kind"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricPassDurationSeconds,
				Help:    "Histogram of full reconciliation pass duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.pushed, m.merged, m.pushErrors, m.passDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncPushed increments the pushed counter for a kind.
func (m *Metrics) IncPushed(kind record.Kind) {
	m.pushed.WithLabelValues(string(kind)).Inc()
}

// IncMerged increments the merged counter for a kind.
func (m *Metrics) IncMerged(kind record.Kind) {
	m.merged.WithLabelValues(string(kind)).Inc()
}

// IncPushErrors increments the push error counter for a kind.
func (m *Metrics) IncPushErrors(kind record.Kind) {
	m.pushErrors.WithLabelValues(string(kind)).Inc()
}

// ObservePassDuration records the duration of a full pass.
func (m *Metrics) ObservePassDuration(seconds float64) {
	m.passDuration.Observe(seconds)
}
