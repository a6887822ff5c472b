package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records processing outcomes for gateway webhook deliveries.
type WebhookMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	rejected *prometheus.CounterVec
	replays  *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Duration of webhook reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_outcomes_total",
		Help: "Webhook deliveries by resolved outcome.",
	}, []string{"gateway", "outcome"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_signature_rejections_total",
		Help: "Webhook deliveries rejected before processing for an invalid signature.",
	}, []string{"gateway"})
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_replay_runs_total",
		Help: "Deferred replay attempts by result.",
	}, []string{"result"})
	reg.MustRegister(duration, outcomes, rejected, replays)
	return &WebhookMetrics{
		duration: duration,
		outcomes: outcomes,
		rejected: rejected,
		replays:  replays,
	}
}

// ObserveDuration records the reconciliation duration for a gateway.
func (m *WebhookMetrics) ObserveDuration(gateway string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(gateway)).Observe(duration.Seconds())
}

// IncOutcome increments the outcome counter for a gateway.
func (m *WebhookMetrics) IncOutcome(gateway, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}

// IncRejected increments the signature rejection counter for a gateway.
func (m *WebhookMetrics) IncRejected(gateway string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(gateway)).Inc()
}

// IncReplay increments the replay counter for the given result.
func (m *WebhookMetrics) IncReplay(result string) {
	if m == nil || m.replays == nil {
		return
	}
	m.replays.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
