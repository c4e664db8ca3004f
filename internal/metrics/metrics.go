package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/imlink/internal/sdkerr"
)

const namespace = "imlink"

// Metrics holds the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionState      prometheus.Gauge
	rpcRequests       *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
	reconnectAttempts prometheus.Counter
	eventsPublished   *prometheus.CounterVec
	messagesReceived  prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (0 disconnected, 1 connecting, 2 authenticating, 3 connected, 4 disconnecting, 5 reconnecting).",
		}),
		rpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Correlated requests by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Correlated request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnection attempts.",
		}),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Session events published by kind.",
			},
			[]string{"kind"},
		),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages delivered by recv notifications.",
		}),
	}

	m.registry.MustRegister(
		m.sessionState,
		m.rpcRequests,
		m.rpcDuration,
		m.reconnectAttempts,
		m.eventsPublished,
		m.messagesReceived,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetSessionState records the numeric session state.
func (m *Metrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, Outcome(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// IncReconnectAttempts counts a scheduled reconnection attempt.
func (m *Metrics) IncReconnectAttempts() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// IncEventsPublished counts a published event.
func (m *Metrics) IncEventsPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

// IncMessagesReceived counts a delivered message.
func (m *Metrics) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

// Outcome maps a request error onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, sdkerr.ErrServer):
		return "server_error"
	}
	if k := sdkerr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
