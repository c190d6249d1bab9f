// Package metric manages prometheus metric registration for AutoGraph
// clients. Each client registers its collectors under a component name so
// multiple clients can share one registry without collisions.
package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeveloperBeau/AutoGraph/errors"
)

// Registrar defines the interface for registering component metrics
type Registrar interface {
	RegisterCounter(component, name string, counter prometheus.Counter) error
	RegisterGauge(component, name string, gauge prometheus.Gauge) error
	RegisterCounterVec(component, name string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(component, name string, gaugeVec *prometheus.GaugeVec) error
	Unregister(component, name string) bool
}

// Registry manages the registration and lifecycle of metrics
type Registry struct {
	prometheusRegistry *prometheus.Registry
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates a new metrics registry with Go runtime collectors
func NewRegistry() *Registry {
	prometheusRegistry := prometheus.NewRegistry()
	prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		prometheusRegistry: prometheusRegistry,
		registered:         make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns an HTTP handler exposing the registry in Prometheus format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// RegisterCounter registers a counter metric for a component
func (r *Registry) RegisterCounter(component, name string, counter prometheus.Counter) error {
	return r.register(component, name, counter, "RegisterCounter")
}

// RegisterGauge registers a gauge metric for a component
func (r *Registry) RegisterGauge(component, name string, gauge prometheus.Gauge) error {
	return r.register(component, name, gauge, "RegisterGauge")
}

// RegisterCounterVec registers a counter vector metric for a component
func (r *Registry) RegisterCounterVec(component, name string, counterVec *prometheus.CounterVec) error {
	return r.register(component, name, counterVec, "RegisterCounterVec")
}

// RegisterGaugeVec registers a gauge vector metric for a component
func (r *Registry) RegisterGaugeVec(component, name string, gaugeVec *prometheus.GaugeVec) error {
	return r.register(component, name, gaugeVec, "RegisterGaugeVec")
}

func (r *Registry) register(component, name string, collector prometheus.Collector, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)

	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", name, component),
			"Registry", op, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", op,
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "Registry", op, "register collector with prometheus")
	}

	r.registered[key] = collector
	return nil
}

// Unregister removes a metric from the registry
func (r *Registry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)

	collector, exists := r.registered[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registered, key)
	}

	return success
}
