// Package metrics exposes the Prometheus instruments used by the
// orchestrator server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WebhookDispatches *prometheus.CounterVec
	BotPolls          *prometheus.CounterVec
	CredentialLatency prometheus.Histogram
}

// New registers the instruments on the default registry.
func New(namespace string) *Metrics {
	return NewWith(namespace, prometheus.DefaultRegisterer)
}

// NewWith registers the instruments on the given registerer. Tests pass a
// private registry to avoid duplicate-registration panics.
func NewWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active realtime voice sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WebhookDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatches_total",
			Help:      "Webhook dispatch attempts by outcome.",
		}, []string{"outcome"}),
		BotPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_status_polls_total",
			Help:      "Remote bot status polls by result.",
		}, []string{"result"}),
		CredentialLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "credential_mint_latency_ms",
			Help:      "Latency of credential issuance in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 700, 1000, 2000, 5000},
		}),
	}
}

// ObserveCredentialLatency records one credential mint duration.
func (m *Metrics) ObserveCredentialLatency(d time.Duration) {
	m.CredentialLatency.Observe(float64(d.Milliseconds()))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
