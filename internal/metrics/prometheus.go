// Package metrics holds the prometheus collectors exported by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	StoreOps       *prometheus.CounterVec
	StoreLatency   *prometheus.HistogramVec
	AuditEntries   prometheus.Counter
	EventsSent     *prometheus.CounterVec
	EventsConsumed *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Repository operations by name and outcome",
		}, []string{"operation", "outcome"}),
		StoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_seconds",
			Help:      "Time spent in repository operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		AuditEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Change log entries written",
		}),
		EventsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Flight change events published by outcome",
		}, []string{"outcome"}),
		EventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Flight change events consumed by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveStore records one repository operation. A nil receiver is a no-op so
// components can run without metrics.
func (m *Metrics) ObserveStore(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(op, outcome).Inc()
	m.StoreLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// AuditWritten counts a change log entry.
func (m *Metrics) AuditWritten() {
	if m == nil {
		return
	}
	m.AuditEntries.Inc()
}

// EventPublished counts a publish attempt.
func (m *Metrics) EventPublished(outcome string) {
	if m == nil {
		return
	}
	m.EventsSent.WithLabelValues(outcome).Inc()
}

// EventConsumed counts a consumed delivery.
func (m *Metrics) EventConsumed(outcome string) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(outcome).Inc()
}
