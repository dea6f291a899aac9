// Package metrics holds the Prometheus collectors for the security core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics exported by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ThreatsDetected   *prometheus.CounterVec
	RequestsRejected  prometheus.Counter
	CryptoFailures    *prometheus.CounterVec
	IncidentsReported *prometheus.CounterVec
	NotifyFailures    prometheus.Counter
	RetentionDeleted  *prometheus.CounterVec
	RetentionErrors   *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ThreatsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_threats_detected_total",
			Help: "Total number of positive scanner verdicts by detector",
		}, []string{"detector"}),
		RequestsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "guard_requests_rejected_total",
			Help: "Total number of requests rejected by the guard middleware",
		}),
		CryptoFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_crypto_failures_total",
			Help: "Total number of failed crypto operations by operation",
		}, []string{"op"}),
		IncidentsReported: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_incidents_reported_total",
			Help: "Total number of security incidents reported by severity",
		}, []string{"severity"}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "guard_notify_failures_total",
			Help: "Total number of failed stakeholder notifications or containment calls",
		}),
		RetentionDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_retention_deleted_total",
			Help: "Total number of records removed by retention sweeps by category",
		}, []string{"category"}),
		RetentionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_retention_errors_total",
			Help: "Total number of failed retention policies by category",
		}, []string{"category"}),
	}
}

// ThreatDetected increments the detection counter for detector
func (m *Metrics) ThreatDetected(detector string) {
	if m == nil {
		return
	}
	m.ThreatsDetected.WithLabelValues(detector).Inc()
}

// RequestRejected increments the rejected request counter
func (m *Metrics) RequestRejected() {
	if m == nil {
		return
	}
	m.RequestsRejected.Inc()
}

// CryptoFailure increments the crypto failure counter for op
func (m *Metrics) CryptoFailure(op string) {
	if m == nil {
		return
	}
	m.CryptoFailures.WithLabelValues(op).Inc()
}

// IncidentReported increments the incident counter for severity
func (m *Metrics) IncidentReported(severity string) {
	if m == nil {
		return
	}
	m.IncidentsReported.WithLabelValues(severity).Inc()
}

// NotifyFailed increments the notification failure counter
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}

// RetentionSwept records the outcome of one retention policy
func (m *Metrics) RetentionSwept(category string, deleted int, failed bool) {
	if m == nil {
		return
	}
	if deleted > 0 {
		m.RetentionDeleted.WithLabelValues(category).Add(float64(deleted))
	}
	if failed {
		m.RetentionErrors.WithLabelValues(category).Inc()
	}
}
