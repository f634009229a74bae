package metering

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the metering package.
type Metrics struct {
	// Admission decisions
	admitDecisions *prometheus.CounterVec

	// Charge settlements
	charges       *prometheus.CounterVec
	chargedCents  *prometheus.CounterVec
	writeOffs     *prometheus.CounterVec
	writeOffCents *prometheus.CounterVec

	// Operation latency
	opDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with Prometheus collectors.
// Collectors register with the default registry; construct at most one
// Metrics per process.
func NewMetrics() *Metrics {
	return &Metrics{
		admitDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_admit_decisions_total",
				Help: "Total number of admission decisions by outcome",
			},
			[]string{"feature", "result"},
		),

		charges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_charges_total",
				Help: "Total number of settled charges",
			},
			[]string{"feature"},
		),

		chargedCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_charged_cents_total",
				Help: "Total amount debited from ledgers in cents",
			},
			[]string{"feature"},
		),

		writeOffs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_write_offs_total",
				Help: "Total number of charges written off as uncollectable",
			},
			[]string{"feature"},
		),

		writeOffCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterd_write_off_cents_total",
				Help: "Total uncollected amount in cents",
			},
			[]string{"feature"},
		),

		opDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meterd_operation_duration_seconds",
				Help:    "Duration of metering operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
			},
			[]string{"operation"},
		),
	}
}

// RecordAdmit records an admission decision.
func (m *Metrics) RecordAdmit(feature string, reason Reason, allowed bool) {
	result := "allowed"
	if !allowed {
		result = string(reason)
	}
	m.admitDecisions.WithLabelValues(feature, result).Inc()
}

// RecordCharge records a settled charge.
func (m *Metrics) RecordCharge(feature string, amountCents int64) {
	m.charges.WithLabelValues(feature).Inc()
	m.chargedCents.WithLabelValues(feature).Add(float64(amountCents))
}

// RecordWriteOff records an uncollectable charge.
func (m *Metrics) RecordWriteOff(feature string, amountCents int64) {
	m.writeOffs.WithLabelValues(feature).Inc()
	m.writeOffCents.WithLabelValues(feature).Add(float64(amountCents))
}

// RecordOpDuration records the duration of a metering operation.
func (m *Metrics) RecordOpDuration(operation string, seconds float64) {
	m.opDuration.WithLabelValues(operation).Observe(seconds)
}
