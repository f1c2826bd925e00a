// Package metrics exposes preview activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "editpreview"

// Collector records preview activity. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	renders        prometheus.Counter
	renderErrors   prometheus.Counter
	renderDuration prometheus.Histogram
	edits          *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Histogram
	activeSessions prometheus.Gauge
	connections    prometheus.Gauge

	sessions      int64
	maxConcurrent int64
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "passes_total",
			Help:      "Total number of tag and render passes.",
		}),
		renderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "errors_total",
			Help:      "Render passes that failed.",
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Duration of render passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "edits",
			Name:      "committed_total",
			Help:      "Deltas sent to the host, by kind.",
		}, []string{"kind"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "total",
			Help:      "Image uploads, by outcome.",
		}, []string{"outcome"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "size_bytes",
			Help:      "Size of accepted uploads.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10), // 16KiB to 8MiB
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Preview sessions in memory.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Open WebSocket connections.",
		}),
	}
	c.registry.MustRegister(c.renders, c.renderErrors, c.renderDuration, c.edits,
		c.uploads, c.uploadBytes, c.activeSessions, c.connections)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRender records one render pass.
func (c *Collector) ObserveRender(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.renders.Inc()
	if err != nil {
		c.renderErrors.Inc()
		return
	}
	c.renderDuration.Observe(d.Seconds())
}

// IncrementEdit records a delta of kind image, text or button.
func (c *Collector) IncrementEdit(kind string) {
	if c == nil {
		return
	}
	c.edits.WithLabelValues(kind).Inc()
}

// ObserveUpload records an upload outcome: ok, invalid, unauthenticated,
// limited or failed.
func (c *Collector) ObserveUpload(outcome string, size int) {
	if c == nil {
		return
	}
	c.uploads.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		c.uploadBytes.Observe(float64(size))
	}
}

// IncrementSessionCreated records a new session.
func (c *Collector) IncrementSessionCreated() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
	current := atomic.AddInt64(&c.sessions, 1)

	// Update max concurrent if needed
	for {
		max := atomic.LoadInt64(&c.maxConcurrent)
		if current <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.maxConcurrent, max, current) {
			break
		}
	}
}

// IncrementSessionDestroyed records a removed session.
func (c *Collector) IncrementSessionDestroyed() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
	atomic.AddInt64(&c.sessions, -1)
}

// MaxConcurrentSessions returns the high-water mark of live sessions.
func (c *Collector) MaxConcurrentSessions() int64 {
	if c == nil {
		return 0
	}
	return atomic.LoadInt64(&c.maxConcurrent)
}

// ConnectionOpened records a WebSocket connection.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

// ConnectionClosed records a closed WebSocket connection.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connections.Dec()
}
