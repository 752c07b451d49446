// Package metrics exposes the chat server's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat"

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	messagesStored   *prometheus.CounterVec
	verdicts         *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	failOpen         prometheus.Counter
	suppressed       prometheus.Counter
	pushFailures     prometheus.Counter
	offline          *prometheus.CounterVec
	connections      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "path"}),

		messagesStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages persisted, by moderation outcome",
		}, []string{"flagged"}),

		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_verdicts_total",
			Help:      "Verdicts returned by moderation providers",
		}, []string{"provider", "filtered"}),

		providerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_provider_failures_total",
			Help:      "Moderation provider calls that failed or timed out",
		}, []string{"provider"}),

		failOpen: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_fail_open_total",
			Help:      "Messages stored unmoderated because moderation was unavailable",
		}),

		suppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_suppressed_total",
			Help:      "Flagged messages withheld from the receiver of a locked chat",
		}),

		pushFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Socket writes that failed and evicted their connection",
		}),

		offline: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_notifications_total",
			Help:      "Unread notifications for offline receivers, by result",
		}, []string{"result"}),

		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live push connections",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ProviderFailed(provider string) {
	m.providerFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) VerdictReturned(provider string, filtered bool) {
	m.verdicts.WithLabelValues(provider, boolLabel(filtered)).Inc()
}

func (m *Metrics) ConnectionsChanged(total int) { m.connections.Set(float64(total)) }

func (m *Metrics) PushFailed() { m.pushFailures.Inc() }

func (m *Metrics) MessageStored(flagged bool) {
	m.messagesStored.WithLabelValues(boolLabel(flagged)).Inc()
}

func (m *Metrics) ModerationFailedOpen() { m.failOpen.Inc() }

func (m *Metrics) DeliverySuppressed() { m.suppressed.Inc() }

// OfflineNotification counts an unread notification attempt; result is one
// of "sent", "throttled" or "failed".
func (m *Metrics) OfflineNotification(result string) {
	m.offline.WithLabelValues(result).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
