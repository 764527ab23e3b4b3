// Package metrics provides Prometheus metrics for the showcase backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "showcase_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Import cycle metrics
	importCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_import_cycles_total",
			Help: "Total number of import cycles by outcome and trigger",
		},
		[]string{"outcome", "trigger"},
	)

	importCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showcase_import_cycle_duration_seconds",
			Help:    "Duration of an import cycle",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	importRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_import_requests_total",
			Help: "Import requests seen by the poller, by stage",
		},
		[]string{"stage"}, // fetched | accepted
	)

	importsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_imports_total",
			Help: "Processed import requests by result",
		},
		[]string{"result"}, // imported | failed
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showcase_download_bytes_total",
			Help: "Bytes of sketch files downloaded",
		},
	)

	downloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showcase_download_duration_seconds",
			Help:    "Duration of a single sketch file download",
			Buckets: prometheus.DefBuckets,
		},
	)

	outstandingCodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "showcase_outstanding_import_codes",
			Help: "Import codes issued but not yet used",
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "showcase_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCycle records the outcome of one import cycle.
func RecordCycle(trigger string, fetchFailed bool, fetched, accepted, imported, failed int, duration time.Duration) {
	outcome := "ok"
	switch {
	case fetchFailed:
		outcome = "fetch_error"
	case failed > 0:
		outcome = "partial"
	}
	importCyclesTotal.WithLabelValues(outcome, trigger).Inc()
	importCycleDuration.Observe(duration.Seconds())
	importRequestsTotal.WithLabelValues("fetched").Add(float64(fetched))
	importRequestsTotal.WithLabelValues("accepted").Add(float64(accepted))
	importsTotal.WithLabelValues("imported").Add(float64(imported))
	importsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordDownload records a completed file download.
func RecordDownload(bytes int64, duration time.Duration) {
	downloadBytesTotal.Add(float64(bytes))
	downloadDuration.Observe(duration.Seconds())
}

// SetOutstandingCodes sets the number of unused import codes.
func SetOutstandingCodes(count int) {
	outstandingCodes.Set(float64(count))
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
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

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. Paths
// are labelled with the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
