package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow module.
type Metrics struct {
	// Transition outcomes by role and result
	TransitionOutcome *prometheus.CounterVec

	// Denials by stable error code
	Denials *prometheus.CounterVec

	// End-to-end transition latency by operation
	TransitionLatency *prometheus.HistogramVec

	// Optimistic concurrency conflicts surfaced to callers
	RevisionConflicts prometheus.Counter

	// Outbox publishing
	AuditPublished     prometheus.Counter
	AuditPublishErrors prometheus.Counter
	AuditOutboxLag     prometheus.Gauge
}

// New creates a new Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		TransitionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesta_workflow_transitions_total",
			Help: "Total transition attempts by role and result",
		}, []string{"role", "result"}), // result: "approved", "rejected", "denied"

		Denials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attesta_workflow_denials_total",
			Help: "Denied transition attempts by error code",
		}, []string{"code"}),

		TransitionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attesta_workflow_transition_duration_seconds",
			Help:    "Duration of transition operations including persistence",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}), // operation: "verify", "cross_verify", "finalize", "resubmit"

		RevisionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesta_workflow_revision_conflicts_total",
			Help: "Document writes lost to a concurrent revision bump",
		}),

		AuditPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesta_audit_published_total",
			Help: "Audit entries published to the broker",
		}),
		AuditPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attesta_audit_publish_errors_total",
			Help: "Outbox drain attempts that failed",
		}),
		AuditOutboxLag: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "attesta_audit_outbox_pending",
			Help: "Audit entries waiting in the outbox",
		}),
	}
}

// IncrementTransition records a transition outcome.
func (m *Metrics) IncrementTransition(role, result string) {
	if m != nil {
		m.TransitionOutcome.WithLabelValues(role, result).Inc()
	}
}

// IncrementDenial records a denied attempt by its error code.
func (m *Metrics) IncrementDenial(code string) {
	if m != nil {
		m.Denials.WithLabelValues(code).Inc()
	}
}

// ObserveTransitionLatency records the duration of one operation.
func (m *Metrics) ObserveTransitionLatency(operation string, d time.Duration) {
	if m != nil {
		m.TransitionLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// IncrementRevisionConflict records a compare-and-swap loss.
func (m *Metrics) IncrementRevisionConflict() {
	if m != nil {
		m.RevisionConflicts.Inc()
	}
}

// ObservePublished records audit entries acknowledged by the broker.
func (m *Metrics) ObservePublished(count int) {
	if m != nil {
		m.AuditPublished.Add(float64(count))
	}
}

// ObservePublishError records a failed outbox drain.
func (m *Metrics) ObservePublishError() {
	if m != nil {
		m.AuditPublishErrors.Inc()
	}
}

// ObserveOutboxLag records the current outbox depth.
func (m *Metrics) ObserveOutboxLag(pending int) {
	if m != nil {
		m.AuditOutboxLag.Set(float64(pending))
	}
}
