package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every endpoint.
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

// Authentication-domain metrics.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	introspectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_introspections_total",
			Help: "Token introspections by verdict.",
		},
		[]string{"valid"},
	)

	revocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_revoked_total",
			Help: "Tokens placed on the denylist, by path.",
		},
		[]string{"via"},
	)

	revocationsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_revocations_purged_total",
			Help: "Expired denylist records removed.",
		},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginsTotal, introspectionsTotal, revocationsTotal, revocationsPurged,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt ("ok", "bad_credentials", "error").
func ObserveLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// ObserveIntrospection records an introspection verdict.
func ObserveIntrospection(valid bool) {
	introspectionsTotal.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// ObserveRevocation records a denylist insert ("logout" or "refresh").
func ObserveRevocation(via string) {
	revocationsTotal.WithLabelValues(via).Inc()
}

// ObservePurged records removed denylist records.
func ObservePurged(n int64) {
	if n > 0 {
		revocationsPurged.Add(float64(n))
	}
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// CanonicalPath collapses identifier segments so metric cardinality
// stays bounded no matter how many users or roles exist.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	replace := func(idx int, placeholder string) {
		if idx < len(segments) {
			segments[idx] = placeholder
		}
	}
	if len(segments) >= 3 && segments[0] == "v1" {
		switch segments[1] {
		case "users":
			if segments[2] != "me" {
				replace(2, ":id")
			}
		case "roles", "permissions":
			replace(2, ":name")
		}
	}
	return "/" + strings.Join(segments, "/")
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
