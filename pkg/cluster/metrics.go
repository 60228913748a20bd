package cluster

import "github.com/prometheus/client_golang/prometheus"

// metrics mirrors this node's LoadStats as Prometheus gauges. Each
// Registry gets its own prometheus.Registry rather than registering on
// prometheus.DefaultRegisterer, so constructing more than one Registry
// in a process (every package test does) never panics on a duplicate
// collector.
type metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	activeJobs  prometheus.Gauge
}

func newMetrics(nodeID string) *metrics {
	labels := prometheus.Labels{"node_id": nodeID}
	m := &metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "forge_node_connections",
			Help:        "Connection count last published via Registry.PublishLoad.",
			ConstLabels: labels,
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "forge_node_active_jobs",
			Help:        "Active job count last published via Registry.PublishLoad.",
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(m.connections, m.activeJobs)
	return m
}

func (m *metrics) observe(stats LoadStats) {
	m.connections.Set(float64(stats.Connections))
	m.activeJobs.Set(float64(stats.ActiveJobs))
}

// Gatherer exposes this node's metrics for an HTTP /metrics handler
// (promhttp.HandlerFor), keeping the Prometheus wiring out of the
// registry's database-facing API.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.metrics.registry }
