// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus metrics for the network engine. All methods are nil-safe so
// that an engine without metrics pays only a nil check.

package control

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds engine collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	tasks          *prometheus.CounterVec
	portsOpen      prometheus.Gauge
	portsClosing   prometheus.Gauge
	packetsRecv    prometheus.Counter
	packetsSent    prometheus.Counter
	packetsDropped *prometheus.CounterVec
	resolveLatency prometheus.Histogram
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netio",
			Name:      "tasks_total",
			Help:      "Tasks executed by the network loop.",
		}, []string{"kind", "result"}),
		portsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "netio",
			Name:      "ports_open",
			Help:      "Ports currently open.",
		}),
		portsClosing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "netio",
			Name:      "ports_closing",
			Help:      "Ports waiting for their native handles to close.",
		}),
		packetsRecv: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netio",
			Name:      "packets_received_total",
			Help:      "Datagrams delivered to sinks.",
		}),
		packetsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "netio",
			Name:      "packets_sent_total",
			Help:      "Datagrams handed to the kernel.",
		}),
		packetsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netio",
			Name:      "packets_dropped_total",
			Help:      "Datagrams dropped, by reason.",
		}, []string{"reason"}),
		resolveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netio",
			Name:      "resolve_seconds",
			Help:      "Hostname resolution latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
	}
}

// Registry exposes the private registry, e.g. for Gather in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TaskDone counts a finished task.
func (m *Metrics) TaskDone(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.tasks.WithLabelValues(kind, result).Inc()
}

// SetPorts updates the port gauges.
func (m *Metrics) SetPorts(open, closing int) {
	if m == nil {
		return
	}
	m.portsOpen.Set(float64(open))
	m.portsClosing.Set(float64(closing))
}

// PacketReceived counts a delivered datagram.
func (m *Metrics) PacketReceived() {
	if m == nil {
		return
	}
	m.packetsRecv.Inc()
}

// PacketSent counts a sent datagram.
func (m *Metrics) PacketSent() {
	if m == nil {
		return
	}
	m.packetsSent.Inc()
}

// PacketDropped counts a dropped datagram.
func (m *Metrics) PacketDropped(reason string) {
	if m == nil {
		return
	}
	m.packetsDropped.WithLabelValues(reason).Inc()
}

// ResolveObserved records a resolve duration.
func (m *Metrics) ResolveObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.resolveLatency.Observe(d.Seconds())
}
