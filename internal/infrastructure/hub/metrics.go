package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes recorded per member during Dispatch.
const (
	deliverySent    = "sent"
	deliverySkipped = "skipped"
	deliveryDropped = "dropped"
)

// Declaration outcomes recorded by HandleInbound.
const (
	declarationAccepted = "accepted"
	declarationIgnored  = "ignored"
	declarationRejected = "rejected"
)

// Metrics holds the realtime collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connections   prometheus.Gauge
	subscriptions *prometheus.GaugeVec
	dispatches    *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	declarations  *prometheus.CounterVec
}

// NewMetrics registers the realtime collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tracker",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Live realtime connections tracked by the hub.",
		}),
		subscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tracker",
			Subsystem: "realtime",
			Name:      "subscriptions",
			Help:      "Connection memberships by key scope.",
		}, []string{"scope"}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker",
			Subsystem: "realtime",
			Name:      "dispatches_total",
			Help:      "Dispatch calls by event type.",
		}, []string{"type"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker",
			Subsystem: "realtime",
			Name:      "deliveries_total",
			Help:      "Per-connection delivery outcomes.",
		}, []string{"result"}),
		declarations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker",
			Subsystem: "realtime",
			Name:      "declarations_total",
			Help:      "Subscription declarations by outcome.",
		}, []string{"result"}),
	}
}

func (m *Metrics) setConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) subscriptionAdded(scope Scope) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(string(scope)).Inc()
}

func (m *Metrics) subscriptionRemoved(scope Scope) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(string(scope)).Dec()
}

func (m *Metrics) dispatched(msgType string) {
	if m == nil {
		return
	}
	// keep label cardinality bounded
	if !IsEventType(msgType) {
		msgType = "other"
	}
	m.dispatches.WithLabelValues(msgType).Inc()
}

func (m *Metrics) delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) declaration(result string) {
	if m == nil {
		return
	}
	m.declarations.WithLabelValues(result).Inc()
}

func (m *Metrics) reset() {
	if m == nil {
		return
	}
	m.connections.Set(0)
	m.subscriptions.Reset()
}
