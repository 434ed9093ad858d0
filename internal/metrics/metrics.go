package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satmap_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_propagations_total",
			Help: "Satellite-epoch propagations by outcome.",
		},
		[]string{"outcome"},
	)

	propagationBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satmap_propagation_batch_seconds",
			Help:    "Wall time of one propagation batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_samples_total",
			Help: "Sampled coordinate tuples by track kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	propagationWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satmap_propagation_workers",
			Help: "Size of the propagation worker pool.",
		},
	)

	catalogSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satmap_catalog_satellites",
			Help: "Element sets in the loaded catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satmap_catalog_age_seconds",
			Help: "Seconds since the catalog was loaded.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(propagationsTotal)
	prometheus.MustRegister(propagationBatchSeconds)
	prometheus.MustRegister(samplesTotal)
	prometheus.MustRegister(propagationWorkers)
	prometheus.MustRegister(catalogSatellites)
	prometheus.MustRegister(catalogAgeSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch: its duration and per-pair outcomes.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationBatchSeconds.Observe(d.Seconds())
	propagationsTotal.WithLabelValues("ok").Add(float64(success))
	propagationsTotal.WithLabelValues("error").Add(float64(failed))
}

// RecordSamples counts sampled tuples for a track kind ("sky" or "ground").
func RecordSamples(kind string, ok, failed, stale int) {
	samplesTotal.WithLabelValues(kind, "ok").Add(float64(ok))
	samplesTotal.WithLabelValues(kind, "error").Add(float64(failed))
	samplesTotal.WithLabelValues(kind, "stale").Add(float64(stale))
}

// SetPropagationWorkers sets the worker pool size gauge.
func SetPropagationWorkers(n int) {
	propagationWorkers.Set(float64(n))
}

// SetCatalogCount sets the number of loaded element sets.
func SetCatalogCount(n int) {
	catalogSatellites.Set(float64(n))
}

// SetCatalogAge sets the catalog age gauge.
func SetCatalogAge(seconds float64) {
	catalogAgeSeconds.Set(seconds)
}

// knownRoutes are exact paths reported under their own label.
var knownRoutes = map[string]bool{
	"/":                   true,
	"/healthz":            true,
	"/readyz":             true,
	"/metrics":            true,
	"/api/v1/sky":         true,
	"/api/v1/groundtrack": true,
	"/api/v1/passes":      true,
	"/api/v1/satellites":  true,
}

const satellitePrefix = "/api/v1/satellites/"

// normalizeRoute maps a request path to a bounded label set so that
// per-satellite URLs and bot probes do not explode metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, satellitePrefix); ok && id != "" && !strings.Contains(id, "/") {
		return satellitePrefix + "{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
