package sampler

import (
	"context"
	"log/slog"
	"time"

	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// Sampler runs the propagation and transform pipeline over many
// (satellite, epoch) pairs on the propagator's worker pool.
type Sampler struct {
	prop   *propagation.Propagator
	logger *slog.Logger
}

// New creates a Sampler.
func New(prop *propagation.Propagator, logger *slog.Logger) *Sampler {
	return &Sampler{prop: prop, logger: logger}
}

// SampleSkyTrack computes az/el/range fixes for each satellite at each epoch
// as seen by obs.
func (s *Sampler) SampleSkyTrack(ctx context.Context, elements []propagation.Elements, epochs timescale.Sequence, obs transform.Observer) (SkyTracks, error) {
	res, err := s.Sample(ctx, Request{Elements: elements, Epochs: epochs, Observer: &obs})
	return SkyTracks{Tracks: res.Sky, Report: res.Report}, err
}

// SampleGroundTrack computes geodetic sub-points for each satellite at each epoch.
func (s *Sampler) SampleGroundTrack(ctx context.Context, elements []propagation.Elements, epochs timescale.Sequence) (GroundTracks, error) {
	res, err := s.Sample(ctx, Request{Elements: elements, Epochs: epochs, Ground: true})
	return GroundTracks{Tracks: res.Ground, Report: res.Report}, err
}

// slot holds the earth-fixed state of one pair until aggregation.
type slot struct {
	pos transform.PositionECEF
	ok  bool
}

// Sample propagates each pair once and derives every requested track kind
// from it. Failed pairs are skipped and reported; when any failed the error
// is *PartialSamplingFailure and the result is still usable. Cancelling ctx
// returns what was computed so far together with ctx.Err().
func (s *Sampler) Sample(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	n := req.Epochs.Len()
	res := Result{Report: Report{Requested: len(req.Elements) * n}}

	// Prepare models; a satellite that cannot be prepared fails all its pairs.
	prepared := make([]*propagation.Prepared, 0, len(req.Elements))
	owner := make([]int, 0, len(req.Elements)) // prepared index -> element index
	for i, el := range req.Elements {
		pr, err := s.prop.Prepare(el)
		if err != nil {
			s.logger.Warn("skipping satellite", "satellite", el.ID, "error", err)
			res.Report.Failures = append(res.Report.Failures, Failure{
				SatelliteID: el.ID, Index: -1, Stage: StagePrepare, Err: err,
			})
			continue
		}
		prepared = append(prepared, pr)
		owner = append(owner, i)
	}

	slots := make([][]slot, len(req.Elements))
	for i := range slots {
		slots[i] = make([]slot, n)
	}
	stale := make(map[int]*Advisory)
	var pairFailures []Failure

	batchErr := s.prop.Pool().PropagateBatch(ctx, prepared, req.Epochs, func(r propagation.PairResult) {
		sat := owner[r.Sat]
		if r.Err != nil {
			pairFailures = append(pairFailures, Failure{
				SatelliteID: req.Elements[sat].ID, Index: r.Index, Epoch: r.Epoch,
				Stage: StagePropagate, Err: r.Err,
			})
			return
		}
		if r.Stale != nil {
			a := stale[sat]
			if a == nil {
				a = &Advisory{SatelliteID: req.Elements[sat].ID, Window: r.Stale.Window}
				stale[sat] = a
			}
			a.Count++
			if age := r.Stale.Age.Abs(); age > a.MaxAge {
				a.MaxAge = age
			}
		}
		slots[sat][r.Index] = slot{pos: r.Position, ok: true}
	})

	// Completion order is arbitrary; report failures in input order.
	sortFailures(pairFailures, req.Elements)
	res.Report.Failures = append(res.Report.Failures, pairFailures...)

	var skyOK, groundOK, groundFailed int
	for i, el := range req.Elements {
		sat := satelliteOf(el)
		var sky SkyTrack
		var ground GroundTrack
		if req.Observer != nil {
			sky = SkyTrack{Satellite: sat, Fixes: make([]Fix, 0, n)}
		}
		if req.Ground {
			ground = GroundTrack{Satellite: sat, Points: make([]Point, 0, n)}
		}
		for idx, sl := range slots[i] {
			if !sl.ok {
				continue
			}
			res.Report.Propagated++
			if req.Observer != nil {
				sky.Fixes = append(sky.Fixes, Fix{SatelliteID: el.ID, LookAngles: transform.ToTopocentric(sl.pos, *req.Observer)})
				skyOK++
			}
			if req.Ground {
				gp, err := transform.ToGeodetic(sl.pos)
				if err != nil {
					groundFailed++
					res.Report.Failures = append(res.Report.Failures, Failure{
						SatelliteID: el.ID, Index: idx, Epoch: sl.pos.Epoch, Stage: StageGeodetic, Err: err,
					})
					continue
				}
				ground.Points = append(ground.Points, Point{SatelliteID: el.ID, GroundPoint: gp})
				groundOK++
			}
		}
		if req.Observer != nil {
			res.Sky = append(res.Sky, sky)
		}
		if req.Ground {
			res.Ground = append(res.Ground, ground)
		}
		if a := stale[i]; a != nil {
			res.Report.Advisories = append(res.Report.Advisories, *a)
			s.logger.Info("stale elements",
				"satellite", a.SatelliteID,
				"samples", a.Count,
				"max_age_days", a.MaxAge.Hours()/24,
				"window_days", a.Window.Hours()/24,
			)
		}
	}

	missing := res.Report.Requested - res.Report.Propagated
	staleCount := 0
	for _, a := range res.Report.Advisories {
		staleCount += a.Count
	}
	if req.Observer != nil {
		metrics.RecordSamples("sky", skyOK, missing, staleCount)
	}
	if req.Ground {
		metrics.RecordSamples("ground", groundOK, missing+groundFailed, staleCount)
	}

	s.logger.Debug("sampling complete",
		"satellites", len(req.Elements),
		"epochs", n,
		"propagated", res.Report.Propagated,
		"failures", len(res.Report.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if batchErr != nil {
		return res, batchErr
	}
	if len(res.Report.Failures) > 0 {
		return res, &PartialSamplingFailure{Report: res.Report}
	}
	return res, nil
}
