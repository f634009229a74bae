package metering

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_RecordsWithoutSubjectLabels(t *testing.T) {
	m := NewMetrics() // registers with the default registry, once per process

	m.RecordAdmit("chat", ReasonRateLimited, false)
	m.RecordAdmit("chat", "", true)
	m.RecordCharge("chat", 495)
	m.RecordWriteOff("chat", 100)
	m.RecordOpDuration("charge", 0.01)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
		// Subjects are unbounded user ids; no series may be keyed by one.
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "subject" {
					t.Errorf("metric %s carries a subject label", mf.GetName())
				}
			}
		}
	}

	for _, name := range []string{
		"meterd_admit_decisions_total",
		"meterd_charges_total",
		"meterd_charged_cents_total",
		"meterd_write_offs_total",
		"meterd_write_off_cents_total",
		"meterd_operation_duration_seconds",
	} {
		if !found[name] {
			t.Errorf("Expected metric %s to be registered", name)
		}
	}
}
