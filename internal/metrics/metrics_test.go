package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/sky", "/api/v1/sky"},
		{"/api/v1/groundtrack", "/api/v1/groundtrack"},
		{"/api/v1/satellites", "/api/v1/satellites"},
		{"/api/v1/passes", "/api/v1/passes"},

		// Parameterized satellite routes collapse to one label.
		{"/api/v1/satellites/40534", "/api/v1/satellites/{id}"},
		{"/api/v1/satellites/G05", "/api/v1/satellites/{id}"},
		{"/api/v1/satellites/E11", "/api/v1/satellites/{id}"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/satellites/", "other"},
		{"/api/v1/satellites/1/extra", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique satellite IDs produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/satellites/" + strconv.Itoa(40000+i))
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestRecordPropagation(t *testing.T) {
	okBefore := testutil.ToFloat64(propagationsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(propagationsTotal.WithLabelValues("error"))

	RecordPropagation(25*time.Millisecond, 7, 2)

	if got := testutil.ToFloat64(propagationsTotal.WithLabelValues("ok")) - okBefore; got != 7 {
		t.Errorf("ok delta = %v, want 7", got)
	}
	if got := testutil.ToFloat64(propagationsTotal.WithLabelValues("error")) - errBefore; got != 2 {
		t.Errorf("error delta = %v, want 2", got)
	}
}

func TestRecordSamples(t *testing.T) {
	before := testutil.ToFloat64(samplesTotal.WithLabelValues("sky", "stale"))
	RecordSamples("sky", 10, 0, 3)
	if got := testutil.ToFloat64(samplesTotal.WithLabelValues("sky", "stale")) - before; got != 3 {
		t.Errorf("stale delta = %v, want 3", got)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("other", http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("other", http.MethodGet, "418")) - before; got != 1 {
		t.Errorf("request counter delta = %v, want 1", got)
	}
}

func TestCatalogGauges(t *testing.T) {
	SetCatalogCount(31)
	SetCatalogAge(12.5)
	if got := testutil.ToFloat64(catalogSatellites); got != 31 {
		t.Errorf("catalog satellites = %v, want 31", got)
	}
	if got := testutil.ToFloat64(catalogAgeSeconds); got != 12.5 {
		t.Errorf("catalog age = %v, want 12.5", got)
	}
}
