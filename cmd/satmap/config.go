package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/star/satmap/internal/api"
	"github.com/star/satmap/internal/auth"
	"github.com/star/satmap/internal/ephem"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/sampler"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// plotBoth selects both handoff documents.
const plotBoth = "both"

// defaultMaxSamples bounds one-shot runs; a week at one-second steps for
// eight satellites fits.
const defaultMaxSamples = 5000000

// settings is the resolved command configuration.
type settings struct {
	Observer     *transform.Observer
	Start        timescale.Epoch
	Duration     time.Duration
	Step         time.Duration
	Plot         string
	Sources      ephem.Sources
	Groups       []string
	Out          string
	MinElevation float64
	MaxSamples   int
	Passes       bool
	Serve        string
	Prop         propagation.PropConfig
	Scales       timescale.Registry
	API          api.Config
}

func (s settings) wantSky() bool    { return s.Plot != sampler.PlotGround }
func (s settings) wantGround() bool { return s.Plot != sampler.PlotPolar }

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("satmap", pflag.ContinueOnError)
	fs.String("lat", "", "observer geodetic latitude, degrees")
	fs.String("lon", "", "observer longitude, degrees east")
	fs.String("alt", "0", "observer height above the WGS-84 ellipsoid, meters")
	fs.String("start", "", "window start, RFC 3339 (default: now, to the minute)")
	fs.String("time-scale", "UTC", "time scale --start is read in (UTC, GPS, GST, BDT, GLONASST)")
	fs.String("duration", "0s", "window length; 0 samples the start epoch only")
	fs.String("step", "1m", "sampling step")
	fs.String("plot", sampler.PlotPolar, "handoff to produce: polar_azel, ground_track or both")
	fs.StringSlice("tle", nil, "3-line TLE file(s); the group is the upper-cased file name")
	fs.StringSlice("keplerian", nil, "JSON Keplerian element file(s)")
	fs.StringSlice("group", nil, "only sample these groups")
	fs.StringP("out", "o", "", "handoff output file (default: stdout)")
	fs.String("min-elevation", "0", "polar handoff elevation mask, degrees")
	fs.Int("max-samples", defaultMaxSamples, "refuse windows needing more satellite x epoch samples")
	fs.Bool("passes", false, "log predicted passes over the window")
	fs.String("serve", "", "serve the HTTP handoff on this address instead of sampling once")
	fs.String("auth-token", "", "bearer token required by the HTTP API")
	fs.Int("workers", runtime.NumCPU(), "propagation workers")
	fs.String("config", "", "config file (TOML, YAML or JSON)")
	fs.CountP("verbose", "v", "more logging; repeat for more")
	fs.CountP("quiet", "q", "less logging; repeat for less")
	return fs
}

// logLevel maps the -v/-q counts onto slog levels. Net zero logs warnings,
// each -v steps down towards debug and each -q up past error.
func logLevel(verbose, quiet int) slog.Level {
	switch n := verbose - quiet; {
	case n <= -3:
		return slog.LevelError + 8
	case n == -2:
		return slog.LevelError + 4
	case n == -1:
		return slog.LevelError
	case n == 0:
		return slog.LevelWarn
	case n == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// loadSettings merges flags, SATMAP_* environment variables and the optional
// config file. Observer, window start, plot and config file problems are
// errors; malformed tuning values are logged and replaced by defaults.
func loadSettings(fs *pflag.FlagSet, logger *slog.Logger, now time.Time) (settings, error) {
	var s settings

	v := viper.New()
	v.SetEnvPrefix("SATMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return s, err
	}
	if err := v.BindPFlag("prop.workers", fs.Lookup("workers")); err != nil {
		return s, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return s, fmt.Errorf("reading config %s: %w", path, err)
		}
		logger.Info("loaded config file", "path", path)
	}

	s.Scales = loadScales(v, logger)
	s.Prop = loadPropConfig(v, logger)

	s.Plot = strings.ToLower(strings.TrimSpace(v.GetString("plot")))
	switch s.Plot {
	case sampler.PlotPolar, sampler.PlotGround, plotBoth:
	default:
		return s, fmt.Errorf("unknown plot %q: want %s, %s or %s", s.Plot, sampler.PlotPolar, sampler.PlotGround, plotBoth)
	}

	obs, err := parseObserver(v.GetString("lat"), v.GetString("lon"), v.GetString("alt"))
	if err != nil {
		return s, err
	}
	s.Observer = obs

	s.Serve = v.GetString("serve")
	if s.Serve == "" && s.wantSky() && s.Observer == nil {
		return s, errors.New("observer required for the polar handoff: set --lat and --lon")
	}

	scale, err := s.Scales.Lookup(v.GetString("time-scale"))
	if err != nil {
		return s, err
	}
	if raw := strings.TrimSpace(v.GetString("start")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return s, fmt.Errorf("invalid start %q: want RFC 3339", raw)
		}
		s.Start = scale.ToContinuous(t)
	} else {
		s.Start = timescale.ToContinuous(now.UTC().Truncate(time.Minute))
	}

	// The window is checked by SampleEpochs; only malformed text fails here.
	if s.Duration, err = windowDuration(v, "duration", 0); err != nil {
		return s, err
	}
	if s.Step, err = windowDuration(v, "step", time.Minute); err != nil {
		return s, err
	}
	s.MinElevation = floatSetting(v, logger, "min-elevation", 0)
	s.MaxSamples = intSetting(v, logger, "max-samples", defaultMaxSamples)

	s.Sources = ephem.Sources{
		TLE:       cleanPaths(v.GetStringSlice("tle")),
		Keplerian: cleanPaths(v.GetStringSlice("keplerian")),
	}
	s.Groups = v.GetStringSlice("group")
	s.Out = v.GetString("out")
	s.Passes = v.GetBool("passes")

	s.API = api.DefaultConfig()
	s.API.Addr = s.Serve
	s.API.Auth = auth.Config{Token: v.GetString("auth-token")}
	s.API.TrustProxy = v.GetBool("api.trust-proxy")
	s.API.MinElevation = s.MinElevation
	s.API.MaxSamples = intSetting(v, logger, "api.max-samples", s.API.MaxSamples)

	return s, nil
}

// parseObserver returns nil when neither coordinate is given.
func parseObserver(lat, lon, alt string) (*transform.Observer, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, errors.New("observer needs both --lat and --lon")
	}
	var vals [3]float64
	for i, raw := range []string{lat, lon, alt} {
		if i == 2 && strings.TrimSpace(raw) == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid observer coordinate %q", raw)
		}
		vals[i] = f
	}
	obs, err := transform.NewObserver(vals[0], vals[1], vals[2])
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// loadScales applies timescale.<name> offsets (SATMAP_TIMESCALE_GPS=18s or a
// [timescale] table) over the default registry.
func loadScales(v *viper.Viper, logger *slog.Logger) timescale.Registry {
	names := timescale.NewRegistry(nil).Names()
	for name := range v.GetStringMap("timescale") {
		names = append(names, name)
	}
	overrides := make(map[string]time.Duration)
	for _, name := range names {
		key := "timescale." + strings.ToLower(name)
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			logger.Warn("invalid time scale offset, using default", "scale", name, "value", raw)
			continue
		}
		overrides[name] = d
	}
	return timescale.NewRegistry(overrides)
}

func loadPropConfig(v *viper.Viper, logger *slog.Logger) propagation.PropConfig {
	cfg := propagation.DefaultPropConfig()
	cfg.Workers = intSetting(v, logger, "prop.workers", cfg.Workers)
	cfg.KeplerMaxIter = intSetting(v, logger, "prop.kepler-max-iter", cfg.KeplerMaxIter)
	cfg.StaleTLE = durationSetting(v, logger, "prop.stale-tle", cfg.StaleTLE)
	cfg.StaleKeplerian = durationSetting(v, logger, "prop.stale-keplerian", cfg.StaleKeplerian)

	logger.Info("propagation config",
		"workers", cfg.Workers,
		"stale_tle_hours", cfg.StaleTLE.Hours(),
		"stale_keplerian_hours", cfg.StaleKeplerian.Hours(),
	)
	return cfg
}

func intSetting(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def)
		return def
	}
	return n
}

func durationSetting(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def.String())
		return def
	}
	return d
}

// windowDuration parses a window length or step without range checks.
func windowDuration(v *viper.Viper, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q", key, raw)
	}
	return d, nil
}

func floatSetting(v *viper.Viper, logger *slog.Logger, key string, def float64) float64 {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def)
		return def
	}
	return f
}

func cleanPaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, filepath.Clean(p))
		}
	}
	return out
}

// outputPath names the file for one handoff. With several documents the plot
// kind is appended to the base name: sky.json becomes sky_polar_azel.json.
func outputPath(out, plot string, several bool) string {
	if out == "" || !several {
		return out
	}
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "_" + plot + ext
}
