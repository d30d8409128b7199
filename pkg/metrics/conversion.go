package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Message ingest outcomes.
const (
	MessageReceived  = "received"
	MessageStored    = "stored"
	MessageDuplicate = "duplicate"
	MessageForeign   = "foreign"
	MessageInvalid   = "invalid"
)

// Conversion lifecycle events.
const (
	ConversionCreated      = "created"
	ConversionSubmitted    = "submitted"
	ConversionFailed       = "failed"
	ConversionFileNotFound = "file_not_found"
	ConversionFinished     = "finished"
	ConversionErrored      = "errored"
	ConversionReconciled   = "reconciled"
)

// ConversionMetrics counts reconciliation activity.
type ConversionMetrics struct {
	messages    *prometheus.CounterVec
	conversions *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewConversionMetrics registers the conversion metrics on the provided registerer.
func NewConversionMetrics(reg prometheus.Registerer) *ConversionMetrics {
	if reg == nil {
		return &ConversionMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convertflow_messages_total",
		Help: "Notification messages handled by the ingestor, by result.",
	}, []string{"result"})
	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convertflow_conversions_total",
		Help: "Conversion lifecycle events.",
	}, []string{"event"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convertflow_subprocess_transitions_total",
		Help: "Sub-process status transitions, by process and new status.",
	}, []string{"process", "status"})
	reg.MustRegister(messages, conversions, transitions)
	return &ConversionMetrics{
		messages:    messages,
		conversions: conversions,
		transitions: transitions,
	}
}

// AddMessages adds n to the counter for result.
func (m *ConversionMetrics) AddMessages(result string, n int) {
	if m == nil || m.messages == nil || n <= 0 {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(result)).Add(float64(n))
}

// IncConversion records a lifecycle event.
func (m *ConversionMetrics) IncConversion(event string) {
	if m == nil || m.conversions == nil {
		return
	}
	m.conversions.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncTransition records a sub-process moving to status.
func (m *ConversionMetrics) IncTransition(process, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(process), normalizeLabel(status)).Inc()
}
