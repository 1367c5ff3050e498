package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks payout outcomes, gateway latency and webhook handling.
type SettlementMetrics struct {
	payouts  *prometheus.CounterVec
	gateway  *prometheus.HistogramVec
	webhooks *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "payouts_total",
		Help:      "Settled payout attempts by flow and outcome.",
	}, []string{"flow", "outcome"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"operation", "result"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Gateway callbacks by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(payouts, gateway, webhooks)
	return &SettlementMetrics{
		payouts:  payouts,
		gateway:  gateway,
		webhooks: webhooks,
	}
}

// IncPayout counts one payout attempt for the flow (scheduled, instant).
func (m *SettlementMetrics) IncPayout(flow, outcome string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall records a gateway round trip.
func (m *SettlementMetrics) ObserveGatewayCall(operation string, err error, duration time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gateway.WithLabelValues(normalizeLabel(operation), result).Observe(duration.Seconds())
}

// IncWebhook counts one handled callback.
func (m *SettlementMetrics) IncWebhook(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
