package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds the workflow engine's Prometheus collectors. All methods are
// safe to call on a nil *Metrics so services can run without observability.
type Metrics struct {
	ApplicationsSubmitted  *prometheus.CounterVec
	ApplicationTransitions *prometheus.CounterVec
	TaskResults            *prometheus.CounterVec
	TasksAssigned          prometheus.Counter
	EscalationsCreated     *prometheus.CounterVec
	EscalationsResolved    *prometheus.CounterVec
	DocumentsUploaded      prometheus.Counter
	DocumentsExpired       prometheus.Counter
	ContentionRetries      *prometheus.CounterVec
	AuditFailures          prometheus.Counter
	EventsDropped          prometheus.Counter
	OperationDuration      *prometheus.HistogramVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ApplicationsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_applications_submitted_total",
			Help: "Applications accepted at intake",
		}, []string{"category", "tier"}),
		ApplicationTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_application_transitions_total",
			Help: "Application status transitions",
		}, []string{"from", "to"}),
		TaskResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_task_results_total",
			Help: "Task results recorded by type and result",
		}, []string{"type", "result"}),
		TasksAssigned: f.NewCounter(prometheus.CounterOpts{
			Name: "vetting_tasks_assigned_total",
			Help: "Task assignments, including reassignments",
		}),
		EscalationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_escalations_created_total",
			Help: "Escalations opened by source type and urgency",
		}, []string{"source", "urgency"}),
		EscalationsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_escalations_resolved_total",
			Help: "Escalations resolved by outcome",
		}, []string{"outcome"}),
		DocumentsUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "vetting_documents_uploaded_total",
			Help: "Documents accepted for review",
		}),
		DocumentsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "vetting_documents_expired_total",
			Help: "Verified documents expired by the sweeper",
		}),
		ContentionRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vetting_contention_retries_total",
			Help: "Retries caused by lease contention or version conflicts",
		}, []string{"operation"}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vetting_audit_failures_total",
			Help: "Mutations rolled back because the audit entry could not be written",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "vetting_events_dropped_total",
			Help: "Domain events that could not be published",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vetting_operation_duration_seconds",
			Help:    "Duration of workflow operations",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vetting_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern and status",
			Buckets: latencyBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncSubmitted(category, tier string) {
	if m == nil {
		return
	}
	m.ApplicationsSubmitted.WithLabelValues(category, tier).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.ApplicationTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncTaskResult(taskType, result string) {
	if m == nil {
		return
	}
	m.TaskResults.WithLabelValues(taskType, result).Inc()
}

func (m *Metrics) IncAssigned() {
	if m == nil {
		return
	}
	m.TasksAssigned.Inc()
}

func (m *Metrics) IncEscalationCreated(source, urgency string) {
	if m == nil {
		return
	}
	m.EscalationsCreated.WithLabelValues(source, urgency).Inc()
}

func (m *Metrics) IncEscalationResolved(outcome string) {
	if m == nil {
		return
	}
	m.EscalationsResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDocumentUploaded() {
	if m == nil {
		return
	}
	m.DocumentsUploaded.Inc()
}

func (m *Metrics) IncDocumentsExpired(n int) {
	if m == nil {
		return
	}
	m.DocumentsExpired.Add(float64(n))
}

func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.ContentionRetries.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

func (m *Metrics) IncEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveRequest records an HTTP request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
