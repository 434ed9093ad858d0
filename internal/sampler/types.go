// Package sampler evaluates satellites over a sequence of epochs and
// aggregates the results per satellite: topocentric fixes for a polar sky
// plot and geodetic sub-points for a ground-track plot.
package sampler

import (
	"fmt"
	"strings"
	"time"

	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// Satellite identifies a track.
type Satellite struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

func satelliteOf(el propagation.Elements) Satellite {
	return Satellite{ID: el.ID, Name: el.Name, Group: el.Group}
}

// Fix is one topocentric sample. Below-horizon fixes are kept.
type Fix struct {
	SatelliteID string
	transform.LookAngles
}

// Point is one geodetic sub-satellite sample.
type Point struct {
	SatelliteID string
	transform.GroundPoint
}

// SkyTrack is the ordered fixes of one satellite.
type SkyTrack struct {
	Satellite
	Fixes []Fix
}

// GroundTrack is the ordered sub-points of one satellite.
type GroundTrack struct {
	Satellite
	Points []Point
}

// SkyTracks holds one track per input satellite, in input order.
type SkyTracks struct {
	Tracks []SkyTrack
	Report Report
}

// GroundTracks holds one track per input satellite, in input order.
type GroundTracks struct {
	Tracks []GroundTrack
	Report Report
}

// Request describes one sampling run. Observer nil skips the sky track;
// Ground false skips the ground track.
type Request struct {
	Elements []propagation.Elements
	Epochs   timescale.Sequence
	Observer *transform.Observer
	Ground   bool
}

// Result holds both track kinds from one pass over the (satellite, epoch) pairs.
type Result struct {
	Sky    []SkyTrack
	Ground []GroundTrack
	Report Report
}

// Stage names where a pair failed.
const (
	StagePrepare   = "prepare"
	StagePropagate = "propagate"
	StageGeodetic  = "geodetic"
)

// Failure records one skipped sample. Index is -1 when the whole satellite
// failed before any epoch was evaluated.
type Failure struct {
	SatelliteID string
	Index       int
	Epoch       timescale.Epoch
	Stage       string
	Err         error
}

func (f Failure) String() string {
	if f.Index < 0 {
		return fmt.Sprintf("%s: %s: %v", f.SatelliteID, f.Stage, f.Err)
	}
	return fmt.Sprintf("%s@%s: %s: %v", f.SatelliteID, f.Epoch, f.Stage, f.Err)
}

// Advisory summarizes stale-element warnings for one satellite.
type Advisory struct {
	SatelliteID string
	Count       int           // affected samples
	MaxAge      time.Duration // largest |target - epoch| seen
	Window      time.Duration
}

// Report accounts for every requested pair.
type Report struct {
	Requested  int // satellites x epochs
	Propagated int // pairs with a usable state
	Failures   []Failure
	Advisories []Advisory
}

// Failed returns the number of pairs missing a requested sample: those with
// no usable state plus those whose state could not be made geodetic.
func (r Report) Failed() int {
	n := r.Requested - r.Propagated
	for _, f := range r.Failures {
		if f.Stage == StageGeodetic {
			n++
		}
	}
	return n
}

// PartialSamplingFailure is returned when some pairs failed. The results
// returned alongside it are complete for every other pair.
type PartialSamplingFailure struct {
	Report Report
}

func (e *PartialSamplingFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d samples failed", len(e.Report.Failures), e.Report.Requested)
	if len(e.Report.Failures) > 0 {
		fmt.Fprintf(&b, " (first: %s)", e.Report.Failures[0])
	}
	return b.String()
}

// Unwrap exposes the underlying per-pair errors to errors.Is and errors.As.
func (e *PartialSamplingFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Report.Failures))
	for _, f := range e.Report.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Visible returns the fixes at or above minElevation degrees, preserving order.
func Visible(fixes []Fix, minElevation float64) []Fix {
	out := make([]Fix, 0, len(fixes))
	for _, f := range fixes {
		if f.ElevationDeg >= minElevation {
			out = append(out, f)
		}
	}
	return out
}

// Segments splits a ground track where consecutive longitudes jump by more
// than 180 degrees, i.e. where the track crosses the antimeridian. Each
// segment can be drawn as one polyline.
func Segments(points []Point) [][]Point {
	if len(points) == 0 {
		return nil
	}
	var out [][]Point
	start := 0
	for i := 1; i < len(points); i++ {
		d := points[i].LonDeg - points[i-1].LonDeg
		if d > 180 || d < -180 {
			out = append(out, points[start:i])
			start = i
		}
	}
	return append(out, points[start:])
}
