// Package passes turns sampled sky tracks into visibility windows: rise,
// culmination and set of each satellite above an elevation mask.
package passes

import (
	"context"
	"time"

	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/sampler"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// refineTol is the rise/set bisection tolerance in seconds. SGP4 states are
// evaluated on whole seconds, so finer tolerances buy nothing.
const refineTol = 1.0

// PassEvent describes a single satellite pass over an observer location.
// OpenStart/OpenEnd mark passes already in progress at the window start or
// still in progress at its end; their rise/set are the window bounds.
type PassEvent struct {
	StartTime        time.Time `json:"start_time"`
	MaxElevationTime time.Time `json:"max_elevation_time"`
	EndTime          time.Time `json:"end_time"`
	DurationSeconds  float64   `json:"duration_seconds"`
	MaxElevation     float64   `json:"max_elevation"`
	AzimuthAtMax     float64   `json:"azimuth_at_max"`
	StartAzimuth     float64   `json:"start_azimuth"`
	EndAzimuth       float64   `json:"end_azimuth"`
	OpenStart        bool      `json:"open_start,omitempty"`
	OpenEnd          bool      `json:"open_end,omitempty"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	sampler.Satellite
	Passes []PassEvent `json:"passes"`
	Error  string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer     transform.Observer
	Elements     []propagation.Elements
	Epochs       timescale.Sequence
	MinElevation float64 // degrees
	MaxPasses    int     // per satellite; 0 means unlimited
}

// Predict samples the sky track of every satellite and extracts its passes,
// refining rise and set times between samples. Satellites whose samples
// failed carry the failure text; the returned error is whatever the sampler
// returned (possibly *sampler.PartialSamplingFailure).
func Predict(ctx context.Context, prop *propagation.Propagator, smp *sampler.Sampler, req Request) ([]SatellitePasses, error) {
	sky, sampleErr := smp.SampleSkyTrack(ctx, req.Elements, req.Epochs, req.Observer)

	failed := make(map[string]string)
	for _, f := range sky.Report.Failures {
		if _, seen := failed[f.SatelliteID]; !seen {
			failed[f.SatelliteID] = f.String()
		}
	}

	results := make([]SatellitePasses, len(sky.Tracks))
	for i, track := range sky.Tracks {
		results[i] = SatellitePasses{Satellite: track.Satellite, Passes: []PassEvent{}}
		if msg, ok := failed[track.ID]; ok {
			results[i].Error = msg
		}
		pr, err := prop.Prepare(req.Elements[i])
		if err != nil {
			continue
		}
		results[i].Passes = findPasses(ctx, pr, req, track.Fixes)
	}
	return results, sampleErr
}

// findPasses scans fixes for runs at or above the mask.
func findPasses(ctx context.Context, pr *propagation.Prepared, req Request, fixes []sampler.Fix) []PassEvent {
	var (
		passes []PassEvent
		cur    *PassEvent
		prev   *sampler.Fix
	)
	above := func(f sampler.Fix) bool { return f.ElevationDeg >= req.MinElevation }

	for i := range fixes {
		if ctx.Err() != nil {
			break
		}
		f := fixes[i]
		switch {
		case above(f) && cur == nil:
			cur = &PassEvent{MaxElevation: f.ElevationDeg, AzimuthAtMax: f.AzimuthDeg, MaxElevationTime: f.Epoch.Time()}
			switch {
			case prev == nil:
				cur.StartTime, cur.StartAzimuth, cur.OpenStart = f.Epoch.Time(), f.AzimuthDeg, true
			case contiguous(req.Epochs, *prev, f):
				at, la := crossing(pr, req, *prev, f)
				cur.StartTime, cur.StartAzimuth = at, la.AzimuthDeg
			default:
				cur.StartTime, cur.StartAzimuth = f.Epoch.Time(), f.AzimuthDeg
			}
		case above(f):
			if f.ElevationDeg > cur.MaxElevation {
				cur.MaxElevation, cur.AzimuthAtMax, cur.MaxElevationTime = f.ElevationDeg, f.AzimuthDeg, f.Epoch.Time()
			}
		case cur != nil:
			if contiguous(req.Epochs, *prev, f) {
				at, la := crossing(pr, req, *prev, f)
				cur.EndTime, cur.EndAzimuth = at, la.AzimuthDeg
			} else {
				cur.EndTime, cur.EndAzimuth = prev.Epoch.Time(), prev.AzimuthDeg
			}
			passes = appendPass(passes, *cur)
			cur = nil
		}
		prev = &fixes[i]
		if req.MaxPasses > 0 && len(passes) >= req.MaxPasses {
			return passes
		}
	}

	// Still above the mask at the end of the window.
	if cur != nil && prev != nil {
		cur.EndTime, cur.EndAzimuth, cur.OpenEnd = prev.Epoch.Time(), prev.AzimuthDeg, true
		passes = appendPass(passes, *cur)
	}
	return passes
}

func appendPass(passes []PassEvent, p PassEvent) []PassEvent {
	p.DurationSeconds = p.EndTime.Sub(p.StartTime).Seconds()
	return append(passes, p)
}

// contiguous reports whether b directly follows a in the epoch sequence,
// i.e. no failed sample sits between them.
func contiguous(seq timescale.Sequence, a, b sampler.Fix) bool {
	return b.Epoch.Sub(a.Epoch) <= seq.Step().Seconds()*1.5
}

// crossing bisects between a fix below and a fix above the mask (in either
// order) and returns the instant the elevation crosses it. On propagation
// failure it falls back to the later fix.
func crossing(pr *propagation.Prepared, req Request, a, b sampler.Fix) (time.Time, transform.LookAngles) {
	lo, hi := a.Epoch, b.Epoch
	loAbove := a.ElevationDeg >= req.MinElevation
	best := b.LookAngles

	for hi.Sub(lo) > refineTol {
		mid := lo.Add(hi.Sub(lo) / 2)
		sv, err := pr.StateAt(mid)
		if err != nil && !propagation.IsAdvisory(err) {
			break
		}
		la := transform.ToTopocentric(transform.InertialToEarthFixed(sv), req.Observer)
		if (la.ElevationDeg >= req.MinElevation) == loAbove {
			lo = mid
		} else {
			hi = mid
			best = la
		}
	}
	return hi.Time(), best
}
