// Package metrics provides Prometheus metrics for mixtape.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixtape_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mixtape_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixtape_auth_attempts_total",
			Help: "Total API authentication attempts",
		},
		[]string{"result"},
	)

	// Storage backend metrics
	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixtape_storage_operations_total",
			Help: "Total sandbox storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mixtape_storage_operation_duration_seconds",
			Help:    "Sandbox storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// Navigation metrics
	mountsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixtape_mounts_total",
			Help: "Mount attempts by strategy and outcome",
		},
		[]string{"strategy", "result"},
	)

	permissionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixtape_permission_requests_total",
			Help: "Interactive permission requests for external handles",
		},
		[]string{"result"},
	)

	// Import worker metrics
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixtape_import_batches_total",
			Help: "Import batches processed by result",
		},
		[]string{"result"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mixtape_import_batch_duration_seconds",
			Help:    "Time to copy and index one batch",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	filesCopiedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixtape_import_files_copied_total",
			Help: "Files copied into the sandbox store",
		},
	)

	bytesCopiedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixtape_import_bytes_copied_total",
			Help: "Bytes copied into the sandbox store",
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mixtape_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixtape_sse_events_total",
			Help: "Total task events published",
		},
		[]string{"action"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	authAttemptsTotal.WithLabelValues(status(success)).Inc()
}

// RecordStorageOperation records a storage backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordMount records a mount attempt.
func RecordMount(strategy string, success bool) {
	mountsTotal.WithLabelValues(strategy, status(success)).Inc()
}

// RecordPermissionRequest records the outcome of a permission prompt.
func RecordPermissionRequest(granted bool) {
	result := "granted"
	if !granted {
		result = "denied"
	}
	permissionRequestsTotal.WithLabelValues(result).Inc()
}

// RecordBatch records a finished import batch.
func RecordBatch(duration time.Duration, success bool) {
	batchesTotal.WithLabelValues(status(success)).Inc()
	batchDuration.Observe(duration.Seconds())
}

// RecordFileCopied records one file written into the sandbox store.
func RecordFileCopied(bytes int64) {
	filesCopiedTotal.Inc()
	bytesCopiedTotal.Add(float64(bytes))
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records a task event fanned out to subscribers.
func RecordSSEEvent(action string) {
	sseEventsTotal.WithLabelValues(action).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
