// Package metrics exposes prometheus collectors for the loader, the bridge
// and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imageviewer"

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	LoadsTotal     *prometheus.CounterVec
	LoadDuration   prometheus.Histogram
	PayloadBytes   prometheus.Histogram
	BridgeEvents   *prometheus.CounterVec
	RequestsTotal  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
}

// New creates the collectors. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Image loads by outcome kind",
			},
			[]string{"kind"},
		),
		LoadDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Time from trigger to outcome",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		PayloadBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payload_bytes",
				Help:      "Size of accepted image payloads",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		BridgeEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_events_total",
				Help:      "Bridge events by name and whether a handler took them",
			},
			[]string{"event", "handled"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveOutcome records one finished load.
func (m *Metrics) ObserveOutcome(kind string, elapsed time.Duration) {
	m.LoadsTotal.WithLabelValues(kind).Inc()
	m.LoadDuration.Observe(elapsed.Seconds())
}

// ObserveBytes records the size of an accepted payload.
func (m *Metrics) ObserveBytes(n int) {
	m.PayloadBytes.Observe(float64(n))
}

// ObserveBridgeEvent records one dispatched bridge event.
func (m *Metrics) ObserveBridgeEvent(name string, handled bool) {
	m.BridgeEvents.WithLabelValues(name, strconv.FormatBool(handled)).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records every request handled by the router.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestLatency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
