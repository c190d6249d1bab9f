package autograph

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeveloperBeau/AutoGraph/metric"
)

// Metrics holds prometheus metrics for a Client
type Metrics struct {
	framesSent          *prometheus.CounterVec
	framesReceived      *prometheus.CounterVec
	framesDropped       *prometheus.CounterVec
	subscriptionsActive prometheus.Gauge
	reconnectAttempts   prometheus.Counter
	connectionState     prometheus.Gauge
	errorsTotal         *prometheus.CounterVec
}

// newMetrics creates and registers Client metrics
func newMetrics(registry *metric.Registry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"component": componentName}

	metrics := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "autograph",
			Subsystem:   "ws_client",
			Name:        "frames_sent_total",
			Help:        "Total frames written to the transport",
			ConstLabels: labels,
		}, []string{"type"}),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "autograph",
			Subsystem:   "ws_client",
			Name:        "frames_received_total",
			Help:        "Total inbound frames by classified type",
			ConstLabels: labels,
		}, []string{"type"}),

		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "autograph",
			Subsystem:   "ws_client",
			Name:        "frames_dropped_total",
			Help:        "Inbound frames dropped because they could not be attributed",
			ConstLabels: labels,
		}, []string{"reason"}),

		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "autograph",
			Subsystem:   "ws_client",
			Name:        "subscriptions_active",
			Help:        "Number of registered subscriptions",
			ConstLabels: labels,
		}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "autograph",
			Subsystem:   "ws_client",
			Name:        "reconnect_attempts_total",
			Help:        "Total automatic reconnection attempts",
			ConstLabels: labels,
		}),

		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "autograph",
			Subsystem:   "ws_client",
			Name:        "connection_state",
			Help:        "Connection state (0=disconnected, 1=connected)",
			ConstLabels: labels,
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "autograph",
			Subsystem:   "ws_client",
			Name:        "errors_total",
			Help:        "Total errors by type",
			ConstLabels: labels,
		}, []string{"type"}),
	}

	registry.RegisterCounterVec(componentName, "frames_sent", metrics.framesSent)
	registry.RegisterCounterVec(componentName, "frames_received", metrics.framesReceived)
	registry.RegisterCounterVec(componentName, "frames_dropped", metrics.framesDropped)
	registry.RegisterGauge(componentName, "subscriptions_active", metrics.subscriptionsActive)
	registry.RegisterCounter(componentName, "reconnect_attempts", metrics.reconnectAttempts)
	registry.RegisterGauge(componentName, "connection_state", metrics.connectionState)
	registry.RegisterCounterVec(componentName, "errors_total", metrics.errorsTotal)

	return metrics
}

func (m *Metrics) frameSent(kind string) {
	if m != nil {
		m.framesSent.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) frameReceived(kind string) {
	if m != nil {
		m.framesReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) frameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) trackError(errorType string) {
	if m != nil {
		m.errorsTotal.WithLabelValues(errorType).Inc()
	}
}

func (m *Metrics) setSubscriptions(n int) {
	if m != nil {
		m.subscriptionsActive.Set(float64(n))
	}
}

func (m *Metrics) setConnected(connected bool) {
	if m != nil {
		if connected {
			m.connectionState.Set(1)
		} else {
			m.connectionState.Set(0)
		}
	}
}

func (m *Metrics) reconnectAttempt() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}
