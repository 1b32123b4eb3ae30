// Package metric manages Prometheus metrics for the bridge protocol core.
// Each bridge instance owns a private registry so that two instances in one
// process never collide on metric registration.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds a private Prometheus registry plus the core protocol metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	metrics            *Metrics
}

// NewRegistry creates a registry with all core metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	for _, c := range m.collectors() {
		reg.MustRegister(c)
	}
	return &Registry{
		prometheusRegistry: reg,
		metrics:            m,
	}
}

// Core returns the core protocol metrics.
func (r *Registry) Core() *Metrics {
	return r.metrics
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// text format, for hosts that want to scrape bridge internals.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}
