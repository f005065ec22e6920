// Package metrics exposes the Prometheus collectors used by the HTTP layer,
// the generation handlers and the retention sweeper.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeNoImage = "no_image"
	OutcomeError   = "error"
)

// Collector holds every metric the service records.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	storedBytes *prometheus.CounterVec
	sweptFiles  prometheus.Counter

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector registers the metrics on a fresh registry so that several
// collectors can coexist in one process (tests, mostly).
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of vendor image calls by operation and outcome",
			},
			[]string{"provider", "operation", "outcome"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Vendor image call duration in seconds",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider", "operation"},
		),
		storedBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stored_bytes_total",
				Help:      "Bytes written to the upload and result directories",
			},
			[]string{"role"},
		),
		sweptFiles: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_removed_files_total",
				Help:      "Files removed by the retention sweeper",
			},
		),
		gatherer: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGeneration records one vendor call.
func (c *Collector) RecordGeneration(provider, operation, outcome string, duration time.Duration) {
	c.generationsTotal.WithLabelValues(provider, operation, outcome).Inc()
	c.generationDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordStored records bytes written for the given role ("upload" or "result").
func (c *Collector) RecordStored(role string, n int) {
	c.storedBytes.WithLabelValues(role).Add(float64(n))
}

// RecordSwept records files removed by retention.
func (c *Collector) RecordSwept(n int) {
	c.sweptFiles.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.logger),
	})
}
