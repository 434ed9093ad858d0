package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/star/satmap/internal/auth"
	"github.com/star/satmap/internal/ephem"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/sampler"
)

const gpsOps = `GPS BIIF-9  (PRN 26)
1 40534U 15013A   24100.50000000  .00000000  00000-0  00000-0 0  9998
2 40534  55.1234 150.2345 0052000  40.1234 320.5678  2.00563000 65434
GPS BIII-1  (PRN 04)
1 43873U 18109A   24100.50000000  .00000000  00000-0  00000-0 0  9996
2 43873  55.0123  30.5432 0022000 190.4321 170.2345  2.00561000 39125
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testServer(t *testing.T, loaded bool, mutate func(*Config)) http.Handler {
	t.Helper()
	logger := testLogger()
	store := ephem.NewStore()
	if loaded {
		els, err := ephem.ParseTLE(strings.NewReader(gpsOps), "GPS-OPS", logger)
		require.NoError(t, err)
		cat, err := ephem.NewCatalog(els...)
		require.NoError(t, err)
		store.Set(cat)
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	prop := propagation.NewPropagator(propagation.PropConfig{Workers: 2}, logger)
	return NewServer(cfg, store, prop, sampler.New(prop, logger), logger).HTTPServer().Handler
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

const window = "start=2024-04-09T12:00:00Z&duration=2h&step=10m"

func TestSkyHandler(t *testing.T) {
	h := testServer(t, true, nil)
	w := get(h, "/api/v1/sky?lat=40.0&lon=-105.3&alt=1600&min_elevation=-90&"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var doc sampler.Handoff
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	require.Equal(t, sampler.PlotPolar, doc.Plot)
	require.NotNil(t, doc.Observer)
	require.InDelta(t, 40.0, doc.Observer.LatDeg, 1e-12)
	require.Len(t, doc.Satellites, 2)
	require.Len(t, doc.Satellites[0].Samples, 13)
	require.Equal(t, 26, doc.Report.Requested)
	require.Equal(t, 600.0, doc.StepSeconds)
}

func TestGroundTrackHandler(t *testing.T) {
	h := testServer(t, true, nil)
	w := get(h, "/api/v1/groundtrack?id=43873&"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var doc sampler.Handoff
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	require.Equal(t, sampler.PlotGround, doc.Plot)
	require.Nil(t, doc.Observer)
	require.Len(t, doc.Satellites, 1)
	require.Equal(t, "43873", doc.Satellites[0].ID)
	for _, s := range doc.Satellites[0].Samples {
		require.GreaterOrEqual(t, s.Coords[1], -180.0)
		require.Less(t, s.Coords[1], 180.0)
	}
}

func TestPassesHandler(t *testing.T) {
	h := testServer(t, true, nil)
	w := get(h, "/api/v1/passes?lat=40.0&lon=-105.3&start=2024-04-09T12:00:00Z&duration=24h&step=5m")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Satellites []struct {
			ID     string            `json:"id"`
			Passes []json.RawMessage `json:"passes"`
		} `json:"satellites"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Satellites, 2)
	require.Equal(t, "40534", resp.Satellites[0].ID)
}

// TestMalformedRequests verifies that bad windows, observers and budgets are
// rejected with 400 instead of being sampled.
func TestMalformedRequests(t *testing.T) {
	h := testServer(t, true, func(c *Config) { c.MaxSamples = 100 })

	tests := []struct {
		name   string
		target string
		field  string
	}{
		{"missing observer", "/api/v1/sky?" + window, ""},
		{"latitude out of range", "/api/v1/sky?lat=91&lon=0&" + window, ""},
		{"latitude not a number", "/api/v1/sky?lat=north&lon=0&" + window, ""},
		{"bad start", "/api/v1/groundtrack?start=yesterday", ""},
		{"bad duration", "/api/v1/groundtrack?start=2024-04-09T12:00:00Z&duration=forever", ""},
		{"negative window", "/api/v1/groundtrack?start=2024-04-09T12:00:00Z&duration=-1h&step=1m", ""},
		{"zero step", "/api/v1/groundtrack?start=2024-04-09T12:00:00Z&duration=1h&step=0s", ""},
		{"unknown satellite", "/api/v1/groundtrack?id=12345&" + window, ""},
		{"unknown group", "/api/v1/groundtrack?group=GLO-OPS&" + window, ""},
		{"budget exceeded", "/api/v1/groundtrack?start=2024-04-09T12:00:00Z&duration=24h&step=1m", "max_samples"},
		{"window too fine", "/api/v1/groundtrack?start=2024-04-09T12:00:00Z&duration=1400000h&step=1ns", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(h, tt.target)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var resp map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			require.NotNil(t, resp["error"])
			if tt.field != "" {
				require.NotNil(t, resp[tt.field])
			}
		})
	}
}

// TestBudgetHoldsForHugeWindows uses a budget large enough that only an
// overflowing product would let the request through.
func TestBudgetHoldsForHugeWindows(t *testing.T) {
	h := testServer(t, true, func(c *Config) { c.MaxSamples = math.MaxInt })

	w := get(h, "/api/v1/groundtrack?start=2024-04-09T12:00:00Z&duration=1400000h&step=1ns")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = get(h, "/api/v1/groundtrack?start=2024-04-09T12:00:00Z&duration=2h&step=1h")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBudgetBoundary(t *testing.T) {
	// window is 13 epochs for 2 satellites.
	require.Equal(t, http.StatusOK, get(testServer(t, true, func(c *Config) { c.MaxSamples = 26 }), "/api/v1/groundtrack?"+window).Code)
	require.Equal(t, http.StatusBadRequest, get(testServer(t, true, func(c *Config) { c.MaxSamples = 25 }), "/api/v1/groundtrack?"+window).Code)
}

func TestNoCatalog(t *testing.T) {
	h := testServer(t, false, nil)

	require.Equal(t, http.StatusOK, get(h, "/healthz").Code)
	require.Equal(t, http.StatusServiceUnavailable, get(h, "/readyz").Code)
	require.Equal(t, http.StatusServiceUnavailable, get(h, "/api/v1/groundtrack?"+window).Code)
	require.Equal(t, http.StatusServiceUnavailable, get(h, "/api/v1/satellites").Code)
}

func TestSatellites(t *testing.T) {
	h := testServer(t, true, nil)
	require.Equal(t, http.StatusOK, get(h, "/readyz").Code)

	w := get(h, "/api/v1/satellites")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Groups     []string         `json:"groups"`
		Satellites []map[string]any `json:"satellites"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Equal(t, []string{"GPS-OPS"}, list.Groups)
	require.Len(t, list.Satellites, 2)
	require.Equal(t, "tle", list.Satellites[0]["kind"])

	w = get(h, "/api/v1/satellites/40534")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "GPS BIIF-9")

	require.Equal(t, http.StatusNotFound, get(h, "/api/v1/satellites/1").Code)
}

func TestAuthGuardsAPI(t *testing.T) {
	h := testServer(t, true, func(c *Config) { c.Auth = auth.Config{Token: "s3cret"} })

	require.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/satellites").Code)
	require.Equal(t, http.StatusOK, get(h, "/healthz").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/satellites", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
