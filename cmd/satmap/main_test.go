package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/star/satmap/internal/sampler"
)

const gpsOps = `GPS BIIF-9  (PRN 26)
1 40534U 15013A   24100.50000000  .00000000  00000-0  00000-0 0  9998
2 40534  55.1234 150.2345 0052000  40.1234 320.5678  2.00563000 65434
GPS BIII-1  (PRN 04)
1 43873U 18109A   24100.50000000  .00000000  00000-0  00000-0 0  9996
2 43873  55.0123  30.5432 0022000 190.4321 170.2345  2.00561000 39125
`

func writeTLE(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gps-ops.txt")
	require.NoError(t, os.WriteFile(path, []byte(gpsOps), 0o644))
	return path
}

func readHandoff(t *testing.T, path string) sampler.Handoff {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var doc sampler.Handoff
	require.NoError(t, json.NewDecoder(f).Decode(&doc))
	return doc
}

func TestRunWritesBothHandoffs(t *testing.T) {
	tle := writeTLE(t)
	out := filepath.Join(t.TempDir(), "sky.json")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--tle", tle,
		"--lat", "40.0", "--lon", "-105.3", "--alt", "1600",
		"--start", "2024-04-09T12:00:00Z", "--duration", "1h", "--step", "10m",
		"--plot", "both", "--min-elevation", "-90", "--passes",
		"--out", out, "-vv",
	}, &stdout, &stderr, testNow)
	require.Equal(t, 0, code, stderr.String())
	require.Zero(t, stdout.Len())
	require.Contains(t, stderr.String(), "element catalog loaded")
	require.Contains(t, stderr.String(), "elapsed_seconds")

	polar := readHandoff(t, filepath.Join(filepath.Dir(out), "sky_polar_azel.json"))
	require.Equal(t, sampler.PlotPolar, polar.Plot)
	require.Len(t, polar.Satellites, 2)
	require.Len(t, polar.Satellites[0].Samples, 7)
	require.Equal(t, "GPS-OPS", polar.Satellites[0].Group)

	ground := readHandoff(t, filepath.Join(filepath.Dir(out), "sky_ground_track.json"))
	require.Equal(t, sampler.PlotGround, ground.Plot)
	require.Len(t, ground.Satellites, 2)
	require.Equal(t, 14, ground.Report.Requested)
	require.Empty(t, ground.Report.Failures)
}

func TestRunGroundTrackToStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--tle", writeTLE(t), "--plot", "ground_track",
		"--start", "2024-04-09T12:00:00Z",
	}, &stdout, &stderr, testNow)
	require.Equal(t, 0, code, stderr.String())

	var doc sampler.Handoff
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	require.Equal(t, sampler.PlotGround, doc.Plot)
	require.Len(t, doc.Satellites, 2)
	require.Len(t, doc.Satellites[0].Samples, 1)
}

func TestRunFailures(t *testing.T) {
	tle := writeTLE(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no observer", []string{"--tle", tle}},
		{"missing element file", []string{"--tle", "/nonexistent/gps-ops.txt", "--plot", "ground_track"}},
		{"no element files", []string{"--plot", "ground_track"}},
		{"unknown group", []string{"--tle", tle, "--plot", "ground_track", "--group", "GALILEO"}},
		{"unknown flag", []string{"--colormap", "viridis"}},
		{"zero step", []string{"--tle", tle, "--plot", "ground_track", "--duration", "1h", "--step", "0s"}},
		{"negative step", []string{"--tle", tle, "--plot", "ground_track", "--duration", "1h", "--step", "-10m"}},
		{"negative duration", []string{"--tle", tle, "--plot", "ground_track", "--duration", "-1h"}},
		{"over sample budget", []string{"--tle", tle, "--plot", "ground_track", "--duration", "1h", "--step", "10m", "--max-samples", "13"}},
		{"window too fine", []string{"--tle", tle, "--plot", "ground_track", "--duration", "1400000h", "--step", "1ns"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.Equal(t, 1, run(context.Background(), tt.args, &stdout, &stderr, testNow))
			require.Zero(t, stdout.Len())
		})
	}
}

func TestRunAtSampleBudget(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--tle", writeTLE(t), "--plot", "ground_track",
		"--start", "2024-04-09T12:00:00Z", "--duration", "1h", "--step", "10m",
		"--max-samples", "14",
	}, &stdout, &stderr, testNow)
	require.Equal(t, 0, code, stderr.String())
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"--help"}, &stdout, &stderr, testNow))
	require.Contains(t, stderr.String(), "--min-elevation")
}
