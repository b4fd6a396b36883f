// Package metrics provides Prometheus metrics collection for tablecrud.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tablecrud"

// Collector holds all Prometheus metrics for tablecrud.
type Collector struct {
	// Operation metrics
	RequestsTotal   *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec

	// Storage metrics
	StorageDuration *prometheus.HistogramVec
	StorageErrors   *prometheus.CounterVec

	// HTTP metrics
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return newCollector(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a collector registered on reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return newCollector(reg, reg)
}

func newCollector(reg prometheus.Registerer, g prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of operation requests by response status",
			},
			[]string{"operation", "status"},
		),
		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Total number of requests rejected before storage",
			},
			[]string{"operation", "reason"},
		),
		StorageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Storage call duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of failed storage calls",
			},
			[]string{"operation"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed config reloads",
			},
		),
		gatherer: g,
	}
}

// RecordRequest counts one finished operation request.
func (c *Collector) RecordRequest(operation string, status int) {
	c.RequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// RecordRejection counts a request rejected before reaching storage.
func (c *Collector) RecordRejection(operation, reason string) {
	c.RejectionsTotal.WithLabelValues(operation, reason).Inc()
}

// ObserveStorage records the duration and outcome of a storage call.
func (c *Collector) ObserveStorage(operation string, d time.Duration, err error) {
	c.StorageDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		c.StorageErrors.WithLabelValues(operation).Inc()
	}
}

// RecordReload counts a config reload attempt.
func (c *Collector) RecordReload(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// StatusLabel returns a string label for the status code class.
func StatusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// Middleware records HTTP request duration and in-flight requests.
// Health and metrics endpoints are skipped.
func (c *Collector) Middleware(metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == metricsPath {
				next.ServeHTTP(w, r)
				return
			}

			c.RequestsInFlight.Inc()
			defer c.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			c.RequestDuration.WithLabelValues(r.Method, StatusLabel(ww.Status())).Observe(time.Since(start).Seconds())
		})
	}
}
