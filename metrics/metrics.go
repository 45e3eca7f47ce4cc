package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for respondent enrolment and verification.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RespondentsRegistered prometheus.Counter
	AccountsActivated     prometheus.Counter
	EnrolmentsEnabled     prometheus.Counter
	Compensations         *prometheus.CounterVec
	NotificationFailures  *prometheus.CounterVec
	RemoteCallDuration    *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RespondentsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "party_respondents_registered_total",
			Help: "Total number of respondent accounts created by enrolment",
		}),
		AccountsActivated: factory.NewCounter(prometheus.CounterOpts{
			Name: "party_accounts_activated_total",
			Help: "Total number of respondents moved from CREATED to ACTIVE",
		}),
		EnrolmentsEnabled: factory.NewCounter(prometheus.CounterOpts{
			Name: "party_enrolments_enabled_total",
			Help: "Total number of pending enrolments promoted to ENABLED",
		}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "party_compensations_total",
			Help: "Compensating actions run after a failed unit of work",
		}, []string{"outcome"}),
		NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "party_notification_failures_total",
			Help: "Notifications that could not be sent, by template",
		}, []string{"template"}),
		RemoteCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "party_remote_call_duration_seconds",
			Help:    "Duration of calls to collaborating services",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"service"}),
	}
}

func (m *Metrics) IncrementRespondentsRegistered() {
	if m == nil {
		return
	}
	m.RespondentsRegistered.Inc()
}

func (m *Metrics) IncrementAccountsActivated() {
	if m == nil {
		return
	}
	m.AccountsActivated.Inc()
}

func (m *Metrics) IncrementEnrolmentsEnabled() {
	if m == nil {
		return
	}
	m.EnrolmentsEnabled.Inc()
}

// CompensationRun records the outcome of one compensating action
func (m *Metrics) CompensationRun(failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.Compensations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementNotificationFailures(template string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(template).Inc()
}

// ObserveRemoteCall records the duration of a call to service.
// Call with time.Now() at the start of the call.
func (m *Metrics) ObserveRemoteCall(service string, start time.Time) {
	if m == nil {
		return
	}
	m.RemoteCallDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}
