package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments every request passing through MetricsMiddleware.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
	InFlight        *prometheus.GaugeVec
	ResponseSize    *prometheus.HistogramVec
}

// NewMetrics registers the HTTP-layer metric family under reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pluginforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pluginforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pluginforge",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}, []string{"method", "route"}),
		ResponseSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pluginforge",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "route"}),
	}
}

// MetricsMiddleware records request counts, durations, in-flight gauges,
// and response sizes, keyed by the route's mux template so dynamic path
// segments (plugin names) never inflate label cardinality.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)
			start := time.Now()

			m.InFlight.WithLabelValues(r.Method, route).Inc()
			defer m.InFlight.WithLabelValues(r.Method, route).Dec()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			m.DurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			m.ResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.size))
		})
	}
}

// routeTemplate prefers the mux route's registered path template over the
// raw URL, falling back to the raw path outside of mux dispatch (e.g. in
// unit tests that call a handler directly).
func routeTemplate(r *http.Request) string {
	if route := requestRouteTemplate(r); route != "" {
		return route
	}
	return r.URL.Path
}
