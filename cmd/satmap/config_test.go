package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/star/satmap/internal/sampler"
	"github.com/star/satmap/internal/timescale"
)

var testNow = time.Date(2024, 4, 9, 12, 34, 56, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func parse(t *testing.T, args ...string) (settings, error) {
	t.Helper()
	fs := newFlagSet()
	fs.SetOutput(io.Discard)
	require.NoError(t, fs.Parse(args))
	return loadSettings(fs, discardLogger(), testNow)
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		verbose, quiet int
		want           slog.Level
	}{
		{0, 0, slog.LevelWarn},
		{1, 0, slog.LevelInfo},
		{2, 0, slog.LevelDebug},
		{5, 1, slog.LevelDebug},
		{0, 1, slog.LevelError},
		{1, 2, slog.LevelError},
		{0, 2, slog.LevelError + 4},
		{0, 3, slog.LevelError + 8},
	}
	for _, tt := range tests {
		if got := logLevel(tt.verbose, tt.quiet); got != tt.want {
			t.Errorf("logLevel(%d, %d) = %v, want %v", tt.verbose, tt.quiet, got, tt.want)
		}
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := parse(t, "--tle", "gps-ops.txt", "--lat", "40.0", "--lon", "-105.3", "--alt", "1600")
	require.NoError(t, err)

	require.NotNil(t, s.Observer)
	require.InDelta(t, 40.0, s.Observer.LatDeg, 1e-12)
	require.InDelta(t, 1600.0, s.Observer.AltM, 1e-12)
	require.Equal(t, sampler.PlotPolar, s.Plot)
	require.Equal(t, time.Minute, s.Step)
	require.Zero(t, s.Duration)
	require.Equal(t, []string{"gps-ops.txt"}, s.Sources.TLE)
	require.Positive(t, s.Prop.Workers)
	require.Equal(t, 30*24*time.Hour, s.Prop.StaleTLE)

	want := timescale.ToContinuous(time.Date(2024, 4, 9, 12, 34, 0, 0, time.UTC))
	require.InDelta(t, 0, s.Start.Sub(want), 1e-6)
}

func TestLoadSettingsEnvironment(t *testing.T) {
	t.Setenv("SATMAP_TIMESCALE_GPS", "19s")
	t.Setenv("SATMAP_PROP_WORKERS", "3")
	t.Setenv("SATMAP_PROP_STALE_TLE", "fortnight")
	t.Setenv("SATMAP_PLOT", "ground_track")

	s, err := parse(t, "--tle", "gps-ops.txt")
	require.NoError(t, err)

	gps, err := s.Scales.Lookup("gps")
	require.NoError(t, err)
	require.Equal(t, 19*time.Second, gps.Offset)
	require.Equal(t, 3, s.Prop.Workers)
	require.Equal(t, 30*24*time.Hour, s.Prop.StaleTLE)
	require.Equal(t, sampler.PlotGround, s.Plot)
	require.Nil(t, s.Observer)
}

func TestLoadSettingsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satmap.toml")
	conf := `lat = 52.0
lon = 4.3
plot = "both"
step = "30s"

[timescale]
bdt = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	s, err := parse(t, "--config", path, "--start", "2024-04-09T12:00:18Z", "--time-scale", "GPS")
	require.NoError(t, err)

	require.NotNil(t, s.Observer)
	require.InDelta(t, 52.0, s.Observer.LatDeg, 1e-12)
	require.Equal(t, plotBoth, s.Plot)
	require.Equal(t, 30*time.Second, s.Step)

	bdt, err := s.Scales.Lookup("BDT")
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, bdt.Offset)

	// 12:00:18 GPS is 12:00:00 UTC.
	want := timescale.ToContinuous(time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC))
	require.InDelta(t, 0, s.Start.Sub(want), 1e-6)
}

func TestLoadSettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"polar without observer", []string{"--tle", "a.txt"}},
		{"latitude only", []string{"--lat", "40"}},
		{"latitude out of range", []string{"--lat", "95", "--lon", "0"}},
		{"longitude not a number", []string{"--lat", "40", "--lon", "west"}},
		{"unknown plot", []string{"--plot", "mercator"}},
		{"bad start", []string{"--plot", "ground_track", "--start", "noon"}},
		{"unknown time scale", []string{"--plot", "ground_track", "--time-scale", "TAI"}},
		{"missing config file", []string{"--plot", "ground_track", "--config", "/nonexistent/satmap.toml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestServeNeedsNoObserver(t *testing.T) {
	s, err := parse(t, "--serve", ":0", "--auth-token", "tok", "--min-elevation", "10")
	require.NoError(t, err)
	require.Nil(t, s.Observer)
	require.Equal(t, ":0", s.API.Addr)
	require.True(t, s.API.Auth.Enabled())
	require.Equal(t, 10.0, s.API.MinElevation)
}

func TestInvalidTuningFallsBack(t *testing.T) {
	s, err := parse(t, "--plot", "ground_track", "--min-elevation", "high", "--workers", "0", "--max-samples", "-1")
	require.NoError(t, err)
	require.Zero(t, s.MinElevation)
	require.Positive(t, s.Prop.Workers)
	require.Equal(t, defaultMaxSamples, s.MaxSamples)
}

// TestWindowKeptAsGiven checks that out-of-range window values reach the
// sampler untouched, while unparsable ones fail.
func TestWindowKeptAsGiven(t *testing.T) {
	s, err := parse(t, "--plot", "ground_track", "--step", "-5m", "--duration", "-1h")
	require.NoError(t, err)
	require.Equal(t, -5*time.Minute, s.Step)
	require.Equal(t, -time.Hour, s.Duration)

	s, err = parse(t, "--plot", "ground_track", "--step", "0s")
	require.NoError(t, err)
	require.Zero(t, s.Step)

	_, err = parse(t, "--plot", "ground_track", "--step", "soon")
	require.Error(t, err)
	_, err = parse(t, "--plot", "ground_track", "--duration", "all day")
	require.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	require.Equal(t, "", outputPath("", sampler.PlotPolar, true))
	require.Equal(t, "sky.json", outputPath("sky.json", sampler.PlotPolar, false))
	require.Equal(t, "out/sky_polar_azel.json", outputPath("out/sky.json", sampler.PlotPolar, true))
	require.Equal(t, "sky_ground_track", outputPath("sky", sampler.PlotGround, true))
}
