package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels used by the pipeline counters.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeCreated  = "created"
	OutcomeFailed   = "failed"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	rowsValidated     *prometheus.CounterVec
	uploadsRejected   *prometheus.CounterVec
	usersProvisioned  *prometheus.CounterVec
	provisionDuration prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	rowsValidated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_rows_validated_total",
		Help: "Upload rows classified by the validator",
	}, []string{"outcome"})

	uploadsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_uploads_rejected_total",
		Help: "Uploads rejected as a whole before row validation",
	}, []string{"code"})

	usersProvisioned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_users_provisioned_total",
		Help: "Rows attempted by the provisioning transaction",
	}, []string{"outcome"})

	provisionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulk_provision_duration_seconds",
		Help:    "Duration of provisioning transactions",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		rowsValidated, uploadsRejected, usersProvisioned, provisionDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		rowsValidated:     rowsValidated,
		uploadsRejected:   uploadsRejected,
		usersProvisioned:  usersProvisioned,
		provisionDuration: provisionDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordValidation counts the rows of one validation run.
func (m *MetricsService) RecordValidation(accepted, rejected int) {
	if m == nil {
		return
	}
	m.rowsValidated.WithLabelValues(OutcomeAccepted).Add(float64(accepted))
	m.rowsValidated.WithLabelValues(OutcomeRejected).Add(float64(rejected))
}

// RecordUploadRejected counts an upload refused before row validation.
func (m *MetricsService) RecordUploadRejected(code string) {
	if m == nil {
		return
	}
	m.uploadsRejected.WithLabelValues(code).Inc()
}

// RecordProvisioning counts the rows of one provisioning call.
func (m *MetricsService) RecordProvisioning(created, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.usersProvisioned.WithLabelValues(OutcomeCreated).Add(float64(created))
	m.usersProvisioned.WithLabelValues(OutcomeFailed).Add(float64(failed))
	m.provisionDuration.Observe(duration.Seconds())
}
