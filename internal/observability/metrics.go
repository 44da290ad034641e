package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Messages            *prometheus.CounterVec
	ModerationDecisions *prometheus.CounterVec
	AuditEvents         *prometheus.CounterVec
	ContextMessages     prometheus.Histogram
	ActiveChatSockets   prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Handled inbound messages by outcome.",
		}, []string{"outcome"}),
		ModerationDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_decisions_total",
			Help:      "Moderation gate decisions, including fail-open passes.",
		}, []string{"decision"}),
		AuditEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Audit events by kind.",
		}, []string{"kind"}),
		ContextMessages: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_messages",
			Help:      "Messages per assembled context.",
			Buckets:   []float64{2, 4, 8, 16, 32, 64},
		}),
		ActiveChatSockets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_chat_sockets",
			Help:      "Open websocket chat connections.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
