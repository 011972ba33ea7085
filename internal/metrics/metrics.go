// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odocs_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odocs_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AssetPromotionMoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odocs_asset_promotion_moved_total",
		Help: "Draft assets moved to their permanent location.",
	})

	AssetPromotionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odocs_asset_promotion_failures_total",
		Help: "Draft asset moves that failed; the reference was rewritten anyway.",
	})

	ShareLinkResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odocs_share_link_resolutions_total",
			Help: "Share link resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	GuestSessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odocs_guest_sessions_issued_total",
		Help: "Guest sessions issued through share links.",
	})

	ViewURLCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odocs_view_url_cache_hits_total",
		Help: "Presigned asset view URLs served from cache.",
	})

	ViewURLCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odocs_view_url_cache_misses_total",
		Help: "Presigned asset view URLs that had to be signed.",
	})
)

// Middleware records request counts and latency. The label is the matched
// chi route pattern so ids in the path do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
