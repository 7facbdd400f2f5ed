package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each Metrics owns its
// registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	layoutWrites    *prometheus.CounterVec
	syncBatchSize   prometheus.Histogram
}

// NewMetrics creates a Metrics with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "layouts_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "layouts_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		layoutWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "layouts_writes_total",
				Help: "Layouts written, by operation",
			},
			[]string{"op"},
		),
		syncBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "layouts_sync_batch_size",
				Help:    "Number of layouts per accepted sync batch",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument records duration and count for one route pattern.
func (m *Metrics) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		status := strconv.Itoa(rec.status)
		m.requestDuration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
		m.requestTotal.WithLabelValues(route, status).Inc()
	})
}

func (m *Metrics) recordWrites(op string, n int) {
	m.layoutWrites.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) recordSyncBatch(n int) {
	m.syncBatchSize.Observe(float64(n))
}
