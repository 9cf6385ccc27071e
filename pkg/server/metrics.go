package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus collectors. Each server owns
// its own registry so multiple servers (tests) never fight over
// registration.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	disconnectsTotal prometheus.Counter
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	handlerErrors    *prometheus.CounterVec
}

// NewMetrics creates and registers the server metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mensageiro",
			Name:      "active_sessions",
			Help:      "Number of currently open connections",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mensageiro",
			Name:      "sessions_total",
			Help:      "Total connections accepted since start",
		}),
		disconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mensageiro",
			Name:      "disconnects_total",
			Help:      "Total connections closed since start",
		}),
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mensageiro",
			Name:      "messages_received_total",
			Help:      "Inbound envelopes by request type",
		}, []string{"type"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mensageiro",
			Name:      "messages_sent_total",
			Help:      "Outbound envelopes (responses and pushes) by type",
		}, []string{"type"}),
		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mensageiro",
			Name:      "handler_errors_total",
			Help:      "Request failures by error kind",
		}, []string{"kind"}),
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *Metrics) RecordSessionCreated() {
	m.sessionsTotal.Inc()
}

func (m *Metrics) RecordSessionDisconnected() {
	m.disconnectsTotal.Inc()
}

func (m *Metrics) RecordMessageReceived(msgType string) {
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordMessageSent(msgType string) {
	m.messagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordHandlerError(kind ErrorKind) {
	m.handlerErrors.WithLabelValues(kind.String()).Inc()
}
