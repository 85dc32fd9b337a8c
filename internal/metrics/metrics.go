// Package metrics exposes Prometheus collectors for the sync server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the server collectors behind a private registry so that
// several hubs (one per test, for instance) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Connections    prometheus.Gauge
	Accepted       prometheus.Counter
	Inbound        *prometheus.CounterVec
	DecodeFailures prometheus.Counter
	Dropped        prometheus.Counter
	RateLimited    prometheus.Counter
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "countsync",
			Name:      "connections",
			Help:      "Number of live connections in the registry.",
		}),
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "countsync",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted since start.",
		}),
		Inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "countsync",
			Name:      "inbound_envelopes_total",
			Help:      "Decoded client envelopes by type.",
		}, []string{"type"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "countsync",
			Name:      "decode_failures_total",
			Help:      "Inbound payloads that could not be decoded.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "countsync",
			Name:      "outbound_dropped_total",
			Help:      "Outbound envelopes dropped because a queue was full.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "countsync",
			Name:      "rate_limited_total",
			Help:      "Inbound envelopes delayed by the per-connection rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.Accepted,
		m.Inbound,
		m.DecodeFailures,
		m.Dropped,
		m.RateLimited,
	)
	return m
}

// Handler exposes the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
