package wampc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discard reasons used as the "reason" label of messages_discarded_total.
const (
	discardUnsolicited     = "unsolicited"
	discardUnknownSub      = "unknown_subscription"
	discardUnknownReg      = "unknown_registration"
	discardUnexpectedState = "unexpected_state"
	discardUnhandled       = "unhandled"
)

// Metrics holds the Prometheus collectors shared by the sessions it is given
// to. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sent          *prometheus.CounterVec
	received      *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	handlerPanics prometheus.Counter
	pending       prometheus.Gauge
	subscriptions prometheus.Gauge
	registrations prometheus.Gauge
}

// NewMetrics registers the client collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
//
// Metrics collected:
//   - wamp_client_messages_sent_total{type}
//   - wamp_client_messages_received_total{type}
//   - wamp_client_messages_discarded_total{type,reason}
//   - wamp_client_handler_panics_total
//   - wamp_client_pending_requests
//   - wamp_client_subscriptions
//   - wamp_client_registrations
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	const ns, sub = "wamp", "client"

	return &Metrics{
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "messages_sent_total",
			Help:      "Total number of WAMP messages sent, by message type",
		}, []string{"type"}),

		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "messages_received_total",
			Help:      "Total number of WAMP messages received, by message type",
		}, []string{"type"}),

		discarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "messages_discarded_total",
			Help:      "Total number of received WAMP messages dropped without delivery",
		}, []string{"type", "reason"}),

		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "handler_panics_total",
			Help:      "Total number of panics recovered from event and invocation handlers",
		}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "pending_requests",
			Help:      "Number of requests waiting for a router reply",
		}),

		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "subscriptions",
			Help:      "Number of active subscriptions",
		}),

		registrations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "registrations",
			Help:      "Number of active procedure registrations",
		}),
	}
}

func (m *Metrics) messageSent(t MessageType) {
	if m != nil {
		m.sent.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) messageReceived(t MessageType) {
	if m != nil {
		m.received.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) messageDiscarded(t MessageType, reason string) {
	if m != nil {
		m.discarded.WithLabelValues(t.String(), reason).Inc()
	}
}

func (m *Metrics) handlerPanic() {
	if m != nil {
		m.handlerPanics.Inc()
	}
}

func (m *Metrics) pendingAdd(n float64) {
	if m != nil {
		m.pending.Add(n)
	}
}

func (m *Metrics) subscriptionsAdd(n float64) {
	if m != nil {
		m.subscriptions.Add(n)
	}
}

func (m *Metrics) registrationsAdd(n float64) {
	if m != nil {
		m.registrations.Add(n)
	}
}
