package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by all endpoints.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Auth lifecycle metrics. Audit write failures get their own counter so
// best-effort audit logging cannot fail silently.
var (
	authLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Authentication attempts by outcome.",
		},
		[]string{"outcome"},
	)

	authRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh token rotations by outcome.",
		},
		[]string{"outcome"},
	)

	authReuseDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_reuse_detected_total",
		Help: "Replays of rotated or revoked refresh tokens.",
	})

	authAuditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_audit_write_failures_total",
		Help: "Audit events dropped because the store write failed.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authLoginsTotal, authRefreshTotal, authReuseDetectedTotal, authAuditFailuresTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncLogin records an authentication attempt outcome (ok, invalid, locked, ...).
func IncLogin(outcome string) {
	authLoginsTotal.WithLabelValues(outcome).Inc()
}

// IncRefresh records a refresh rotation outcome.
func IncRefresh(outcome string) {
	authRefreshTotal.WithLabelValues(outcome).Inc()
}

// IncReuseDetected records a refresh token replay.
func IncReuseDetected() {
	authReuseDetectedTotal.Inc()
}

// IncAuditFailure records a dropped audit event.
func IncAuditFailure() {
	authAuditFailuresTotal.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
