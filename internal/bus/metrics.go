package bus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one Bus instance. A nil
// *Metrics is valid and records nothing, so call sites never need guards.
type Metrics struct {
	publishes       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	dispatched      *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	decodeDrops     prometheus.Counter
	requests        prometheus.Counter
	requestTimeouts prometheus.Counter
	pendingRequests prometheus.Gauge
	reconnects      prometheus.Counter
}

// NewMetrics builds the collector set and registers it when enabled is true.
// Pass a nil registerer to use the Prometheus default.
func NewMetrics(enabled bool, reg prometheus.Registerer) *Metrics {
	if !enabled {
		return nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "publishes_total",
			Help:      "Events published, by channel.",
		}, []string{"channel"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "publish_failures_total",
			Help:      "Failed publish attempts, by channel.",
		}, []string{"channel"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "events_dispatched_total",
			Help:      "Events successfully handled, by event type.",
		}, []string{"event_type"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "handler_failures_total",
			Help:      "Handler errors and panics, by event type.",
		}, []string{"event_type"}),
		decodeDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "decode_drops_total",
			Help:      "Malformed envelopes logged and dropped.",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "requests_total",
			Help:      "Request/reply exchanges started.",
		}),
		requestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "request_timeouts_total",
			Help:      "Request/reply exchanges that hit their deadline.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agendabus",
			Name:      "pending_requests",
			Help:      "Requests currently awaiting a correlated reply.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agendabus",
			Name:      "reconnects_total",
			Help:      "Broker transport rebuilds after the initial connect.",
		}),
	}

	reg.MustRegister(
		m.publishes, m.publishFailures, m.dispatched, m.handlerFailures,
		m.decodeDrops, m.requests, m.requestTimeouts, m.pendingRequests,
		m.reconnects,
	)
	return m
}

func (m *Metrics) IncPublishes(channel string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncPublishFailures(channel string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncDispatched(eventType string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncHandlerFailures(eventType string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncDecodeDrops() {
	if m == nil {
		return
	}
	m.decodeDrops.Inc()
}

func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

func (m *Metrics) IncRequestTimeouts() {
	if m == nil {
		return
	}
	m.requestTimeouts.Inc()
}

func (m *Metrics) SetPendingRequests(n int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(n))
}

func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
