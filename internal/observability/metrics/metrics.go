package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries constant labels for every registered collector.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() prometheus.Labels {
	serviceName := strings.TrimSpace(c.ServiceName)
	if serviceName == "" {
		serviceName = "directdebit"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{"service": serviceName, "env": environment}
}

const (
	PlanEntryCreated = "created"
	PlanEntrySkipped = "skipped"
	PlanEntryQueued  = "queued"
	PlanEntryFailed  = "failed"

	RemoteOutcomeOK        = "ok"
	RemoteOutcomeDeclined  = "declined"
	RemoteOutcomeTransient = "transient"
)

// DirectDebitMetrics tracks mandate, payment and webhook flow health.
type DirectDebitMetrics struct {
	remoteCalls     *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	planEntries     *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	webhookRejected *prometheus.CounterVec
	schedulePolls   *prometheus.CounterVec
	mandates        *prometheus.CounterVec
}

var (
	directDebitOnce    sync.Once
	directDebitMetrics *DirectDebitMetrics
)

// DirectDebit returns the singleton metrics registry.
func DirectDebit() *DirectDebitMetrics {
	return DirectDebitWithConfig(Config{})
}

// DirectDebitWithConfig returns the singleton metrics registry using config labels.
func DirectDebitWithConfig(cfg Config) *DirectDebitMetrics {
	directDebitOnce.Do(func() {
		directDebitMetrics = newDirectDebitMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return directDebitMetrics
}

// ResetDirectDebitMetricsForTest resets the singleton for tests.
func ResetDirectDebitMetricsForTest() {
	directDebitOnce = sync.Once{}
	directDebitMetrics = nil
}

func newDirectDebitMetrics(registerer prometheus.Registerer, cfg Config) *DirectDebitMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := cfg.constLabels()

	m := &DirectDebitMetrics{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "directdebit_remote_calls_total",
			Help:        "Calls to the payment processor API by operation and outcome.",
			ConstLabels: labels,
		}, []string{"operation", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "directdebit_remote_call_duration_seconds",
			Help:        "Latency of payment processor API calls.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			ConstLabels: labels,
		}, []string{"operation"}),
		planEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "directdebit_plan_entries_total",
			Help:        "Checkout plan entries by kind and result.",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "directdebit_webhook_events_total",
			Help:        "Webhook events by resource type, action and ack status.",
			ConstLabels: labels,
		}, []string{"resource_type", "action", "status"}),
		webhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "directdebit_webhook_rejected_total",
			Help:        "Webhook deliveries rejected before processing.",
			ConstLabels: labels,
		}, []string{"reason"}),
		schedulePolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "directdebit_instalment_schedule_polls_total",
			Help:        "Instalment schedule poll attempts by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		mandates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "directdebit_mandates_total",
			Help:        "Mandates recorded locally by scheme.",
			ConstLabels: labels,
		}, []string{"scheme"}),
	}

	registerer.MustRegister(
		m.remoteCalls,
		m.remoteDuration,
		m.planEntries,
		m.webhookEvents,
		m.webhookRejected,
		m.schedulePolls,
		m.mandates,
	)
	return m
}

// ObserveRemoteCall records a processor API call.
func (m *DirectDebitMetrics) ObserveRemoteCall(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(operation, outcome).Inc()
	m.remoteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *DirectDebitMetrics) IncPlanEntry(kind, result string) {
	if m == nil {
		return
	}
	m.planEntries.WithLabelValues(kind, result).Inc()
}

func (m *DirectDebitMetrics) IncWebhookEvent(resourceType, action, status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(resourceType, action, status).Inc()
}

func (m *DirectDebitMetrics) IncWebhookRejected(reason string) {
	if m == nil {
		return
	}
	m.webhookRejected.WithLabelValues(reason).Inc()
}

func (m *DirectDebitMetrics) IncSchedulePoll(outcome string) {
	if m == nil {
		return
	}
	m.schedulePolls.WithLabelValues(outcome).Inc()
}

func (m *DirectDebitMetrics) IncMandate(scheme string) {
	if m == nil {
		return
	}
	if scheme == "" {
		scheme = "unknown"
	}
	m.mandates.WithLabelValues(scheme).Inc()
}
