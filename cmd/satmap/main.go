// Command satmap samples GNSS satellite positions over a time window and
// writes polar (azimuth/elevation) and ground-track handoff documents for a
// plot renderer. With --serve it answers the same questions over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/star/satmap/internal/api"
	"github.com/star/satmap/internal/ephem"
	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/passes"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/sampler"
	"github.com/star/satmap/internal/timescale"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, time.Now())
	stop()
	os.Exit(code)
}

// run is the whole command; it returns the process exit code. Logs go to
// stderr so that stdout can carry a handoff document.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, now time.Time) int {
	fs := newFlagSet()
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	verbose, _ := fs.GetCount("verbose")
	quiet, _ := fs.GetCount("quiet")
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{
		Level: logLevel(verbose, quiet),
	}))

	started := time.Now()
	logger.Info("starting", "at", started.Format(time.RFC3339))
	defer func() {
		logger.Info("finished", "at", time.Now().Format(time.RFC3339), "elapsed_seconds", time.Since(started).Seconds())
	}()

	cfg, err := loadSettings(fs, logger, now)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	cat, err := ephem.Load(cfg.Sources, cfg.Scales, logger)
	if err != nil {
		logger.Error("failed to load orbital elements", "error", err)
		return 1
	}
	oldest, newest := cat.EpochRange()
	logger.Info("element catalog loaded",
		"satellites", cat.Len(),
		"groups", cat.Groups(),
		"oldest_epoch", oldest.String(),
		"newest_epoch", newest.String(),
	)

	prop := propagation.NewPropagator(cfg.Prop, logger)
	smp := sampler.New(prop, logger)

	if cfg.Serve != "" {
		return serve(ctx, cfg, cat, prop, smp, logger)
	}
	return sampleOnce(ctx, cfg, cat, prop, smp, stdout, logger)
}

func sampleOnce(ctx context.Context, cfg settings, cat ephem.Catalog, prop *propagation.Propagator, smp *sampler.Sampler, stdout io.Writer, logger *slog.Logger) int {
	els := cat.Filter(cfg.Groups...)
	if len(els) == 0 {
		logger.Error("no satellites match groups", "groups", cfg.Groups, "known", cat.Groups())
		return 1
	}
	seq, err := timescale.SampleEpochs(cfg.Start, cfg.Start.AddDuration(cfg.Duration), cfg.Step)
	if err != nil {
		logger.Error("invalid sampling window", "error", err)
		return 1
	}

	if seq.Len() > cfg.MaxSamples/len(els) {
		logger.Error("sampling window too large",
			"satellites", len(els),
			"epochs", seq.Len(),
			"max_samples", cfg.MaxSamples,
		)
		return 1
	}
	logger.Info("sampling", "satellites", len(els), "epochs", seq.Len(), "step_seconds", seq.Step().Seconds())

	req := sampler.Request{Elements: els, Epochs: seq, Ground: cfg.wantGround()}
	if cfg.wantSky() {
		req.Observer = cfg.Observer
	}
	res, err := smp.Sample(ctx, req)
	var partial *sampler.PartialSamplingFailure
	switch {
	case errors.As(err, &partial):
		logger.Warn("some samples failed",
			"failed", partial.Report.Failed(),
			"failures", len(partial.Report.Failures),
			"requested", partial.Report.Requested,
		)
		for _, f := range partial.Report.Failures {
			logger.Debug("sample failure", "satellite", f.SatelliteID, "stage", f.Stage, "error", f.Err)
		}
	case err != nil:
		logger.Error("sampling failed", "error", err)
		return 1
	}
	for _, a := range res.Report.Advisories {
		logger.Warn("stale orbital elements",
			"satellite", a.SatelliteID,
			"samples", a.Count,
			"max_age_days", a.MaxAge.Hours()/24,
			"window_days", a.Window.Hours()/24,
		)
	}

	var docs []sampler.Handoff
	if req.Observer != nil {
		docs = append(docs, sampler.PolarHandoff(res.Sky, *req.Observer, seq, res.Report, cfg.MinElevation))
	}
	if req.Ground {
		docs = append(docs, sampler.GroundHandoff(res.Ground, seq, res.Report))
	}
	for _, doc := range docs {
		path := outputPath(cfg.Out, doc.Plot, len(docs) > 1)
		if err := writeHandoff(doc, path, stdout); err != nil {
			logger.Error("failed to write handoff", "plot", doc.Plot, "error", err)
			return 1
		}
		logger.Info("wrote handoff", "plot", doc.Plot, "path", path, "satellites", len(doc.Satellites))
	}

	if cfg.Passes && cfg.Observer != nil && seq.Len() > 1 {
		logPasses(ctx, cfg, els, seq, prop, smp, logger)
	}
	return 0
}

func writeHandoff(doc sampler.Handoff, path string, stdout io.Writer) error {
	if path == "" {
		return doc.WriteJSON(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := doc.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func logPasses(ctx context.Context, cfg settings, els []propagation.Elements, seq timescale.Sequence, prop *propagation.Propagator, smp *sampler.Sampler, logger *slog.Logger) {
	res, err := passes.Predict(ctx, prop, smp, passes.Request{
		Observer:     *cfg.Observer,
		Elements:     els,
		Epochs:       seq,
		MinElevation: cfg.MinElevation,
	})
	var partial *sampler.PartialSamplingFailure
	if err != nil && !errors.As(err, &partial) {
		logger.Error("pass prediction failed", "error", err)
		return
	}
	for _, sp := range res {
		for _, p := range sp.Passes {
			logger.Info("pass",
				"satellite", sp.ID,
				"name", sp.Name,
				"rise", p.StartTime.Format(time.RFC3339),
				"culmination", p.MaxElevationTime.Format(time.RFC3339),
				"set", p.EndTime.Format(time.RFC3339),
				"max_elevation", p.MaxElevation,
				"open_start", p.OpenStart,
				"open_end", p.OpenEnd,
			)
		}
	}
}

func serve(ctx context.Context, cfg settings, cat ephem.Catalog, prop *propagation.Propagator, smp *sampler.Sampler, logger *slog.Logger) int {
	store := ephem.NewStore()
	store.Set(cat)
	metrics.SetCatalogCount(cat.Len())
	metrics.SetPropagationWorkers(prop.Pool().Workers())

	srv := api.NewServer(cfg.API, store, prop, smp, logger)

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.API.Addr, "auth_enabled", cfg.API.Auth.Enabled(), "satellites", cat.Len())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return 1
	}

	logger.Info("server stopped")
	return 0
}
