// Package metrics provides Prometheus metrics for the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piccsync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "piccsync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piccsync_uploads_total",
			Help: "Total number of media uploads",
		},
		[]string{"status"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piccsync_upload_bytes_total",
			Help: "Total bytes accepted by the upload endpoint",
		},
	)

	downloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piccsync_download_bytes_total",
			Help: "Total bytes streamed by the download endpoint",
		},
	)

	quotaExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piccsync_quota_exceeded_total",
			Help: "Total uploads rejected by the storage quota",
		},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "piccsync_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "piccsync_ws_connections_active",
			Help: "Number of active websocket connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency labelled by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordHTTPRequest(r.Method, path, status, time.Since(start))
	})
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpload records an upload attempt.
func RecordUpload(bytes int64, success bool) {
	if success {
		uploadsTotal.WithLabelValues("success").Inc()
		uploadBytes.Add(float64(bytes))
		return
	}
	uploadsTotal.WithLabelValues("error").Inc()
}

// RecordDownload records bytes streamed to a client.
func RecordDownload(bytes int64) {
	downloadBytes.Add(float64(bytes))
}

// RecordQuotaExceeded records a quota rejection.
func RecordQuotaExceeded() {
	quotaExceededTotal.Inc()
}

// RecordRateLimitHit records a 429 response.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// SetWSConnections sets the active websocket connection gauge.
func SetWSConnections(n int) {
	wsConnectionsActive.Set(float64(n))
}
