package observability

import (
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Registration outcomes used as label values.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeUnpaid    = "unpaid"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the backend.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration     *prometheus.HistogramVec
	registrations       *prometheus.CounterVec
	rollbacks           prometheus.Counter
	integrityViolations *prometheus.CounterVec
	authFailures        prometheus.Counter
	storeErrors         *prometheus.CounterVec
	paymentErrors       *prometheus.CounterVec
	activeSessions      prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "influmatch_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influmatch_registrations_total",
				Help: "Company registrations by outcome.",
			},
			[]string{"outcome"},
		),
		rollbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "influmatch_rollbacks_total",
				Help: "Compensating rollbacks after a partial registration write.",
			},
		),
		integrityViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influmatch_integrity_violations_total",
				Help: "Stored records found violating a data invariant.",
			},
			[]string{"kind"},
		),
		authFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "influmatch_auth_failures_total",
				Help: "Logins rejected for bad credentials.",
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influmatch_store_errors_total",
				Help: "Key-value store operation failures.",
			},
			[]string{"op"},
		),
		paymentErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influmatch_payment_errors_total",
				Help: "Payment collaborator calls that did not confirm.",
			},
			[]string{"reason"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "influmatch_active_sessions",
				Help: "Sessions currently registered.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrRegistration counts a registration outcome.
func (m *Metrics) IncrRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// IncrRollback counts a compensating rollback.
func (m *Metrics) IncrRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

// IncrIntegrityViolation counts an invariant violation by kind.
func (m *Metrics) IncrIntegrityViolation(kind domain.IssueKind) {
	if m == nil {
		return
	}
	m.integrityViolations.WithLabelValues(string(kind)).Inc()
}

// IncrAuthFailure counts a rejected login.
func (m *Metrics) IncrAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

// IncrStoreError counts a failed store operation.
func (m *Metrics) IncrStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// IncrPaymentError counts a payment call that did not confirm.
func (m *Metrics) IncrPaymentError(reason string) {
	if m == nil {
		return
	}
	m.paymentErrors.WithLabelValues(reason).Inc()
}

// SetActiveSessions reports the current size of the session registry.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Snapshot returns the fault counters for the diagnostics endpoint.
func (m *Metrics) Snapshot() *domain.OperationalCounters {
	if m == nil {
		return &domain.OperationalCounters{}
	}
	return &domain.OperationalCounters{
		RegistrationsCompleted: getCounterValue(m.registrations.WithLabelValues(OutcomeCompleted)),
		RegistrationsFailed:    getCounterValue(m.registrations.WithLabelValues(OutcomeFailed)),
		Rollbacks:              getCounterValue(m.rollbacks),
		AuthFailures:           getCounterValue(m.authFailures),
		IntegrityViolations:    sumCounterVec(m.integrityViolations),
		StoreErrors:            sumCounterVec(m.storeErrors),
	}
}

// getCounterValue extracts the current float64 value from a counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every label combination of a CounterVec.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := 0.0
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
