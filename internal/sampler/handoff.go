package sampler

import (
	"encoding/json"
	"io"
	"time"

	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// Plot kinds understood by the renderer.
const (
	PlotPolar  = "polar_azel"
	PlotGround = "ground_track"
)

// Handoff is the document passed to a plot renderer: satellite identity
// mapped to an ordered sequence of tagged coordinate tuples. Fields names
// the tuple components.
type Handoff struct {
	Plot        string          `json:"plot"`
	GeneratedAt time.Time       `json:"generated_at"`
	Start       timescale.Epoch `json:"start"`
	End         timescale.Epoch `json:"end"`
	StepSeconds float64         `json:"step_seconds"`
	Observer    *ObserverDoc    `json:"observer,omitempty"`
	Fields      []string        `json:"fields"`
	Satellites  []TrackDoc      `json:"satellites"`
	Report      ReportDoc       `json:"report"`
}

// ObserverDoc is the observer location in a polar handoff.
type ObserverDoc struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltM   float64 `json:"alt_m"`
}

// TrackDoc is one satellite's samples.
type TrackDoc struct {
	Satellite
	Samples []SampleDoc `json:"samples"`
}

// SampleDoc is one tagged tuple. Segment increments at antimeridian
// crossings in ground tracks and is zero otherwise.
type SampleDoc struct {
	Epoch   timescale.Epoch `json:"epoch"`
	Coords  [3]float64      `json:"coords"`
	Segment int             `json:"segment,omitempty"`
}

// ReportDoc is the serializable form of Report.
type ReportDoc struct {
	Requested  int           `json:"requested"`
	Propagated int           `json:"propagated"`
	Failures   []FailureDoc  `json:"failures,omitempty"`
	Advisories []AdvisoryDoc `json:"stale,omitempty"`
}

// FailureDoc is the serializable form of Failure.
type FailureDoc struct {
	SatelliteID string `json:"satellite"`
	Index       int    `json:"index"`
	Stage       string `json:"stage"`
	Error       string `json:"error"`
}

// AdvisoryDoc is the serializable form of Advisory.
type AdvisoryDoc struct {
	SatelliteID string  `json:"satellite"`
	Samples     int     `json:"samples"`
	MaxAgeDays  float64 `json:"max_age_days"`
	WindowDays  float64 `json:"window_days"`
}

func reportDoc(r Report) ReportDoc {
	doc := ReportDoc{Requested: r.Requested, Propagated: r.Propagated}
	for _, f := range r.Failures {
		doc.Failures = append(doc.Failures, FailureDoc{
			SatelliteID: f.SatelliteID, Index: f.Index, Stage: f.Stage, Error: f.Err.Error(),
		})
	}
	for _, a := range r.Advisories {
		doc.Advisories = append(doc.Advisories, AdvisoryDoc{
			SatelliteID: a.SatelliteID,
			Samples:     a.Count,
			MaxAgeDays:  a.MaxAge.Hours() / 24,
			WindowDays:  a.Window.Hours() / 24,
		})
	}
	return doc
}

func newHandoff(plot string, epochs timescale.Sequence, r Report) Handoff {
	h := Handoff{
		Plot:        plot,
		GeneratedAt: time.Now().UTC(),
		StepSeconds: epochs.Step().Seconds(),
		Satellites:  []TrackDoc{},
		Report:      reportDoc(r),
	}
	if epochs.Len() > 0 {
		h.Start = epochs.At(0)
		h.End = epochs.At(epochs.Len() - 1)
	}
	return h
}

// PolarHandoff builds the sky-plot document. Only fixes at or above
// minElevation are included; satellites with none are omitted.
func PolarHandoff(tracks []SkyTrack, obs transform.Observer, epochs timescale.Sequence, r Report, minElevation float64) Handoff {
	h := newHandoff(PlotPolar, epochs, r)
	h.Observer = &ObserverDoc{LatDeg: obs.LatDeg, LonDeg: obs.LonDeg, AltM: obs.AltM}
	h.Fields = []string{"azimuth_deg", "elevation_deg", "range_km"}
	for _, t := range tracks {
		visible := Visible(t.Fixes, minElevation)
		if len(visible) == 0 {
			continue
		}
		doc := TrackDoc{Satellite: t.Satellite, Samples: make([]SampleDoc, len(visible))}
		for i, f := range visible {
			doc.Samples[i] = SampleDoc{Epoch: f.Epoch, Coords: [3]float64{f.AzimuthDeg, f.ElevationDeg, f.RangeKm}}
		}
		h.Satellites = append(h.Satellites, doc)
	}
	return h
}

// GroundHandoff builds the ground-track document.
func GroundHandoff(tracks []GroundTrack, epochs timescale.Sequence, r Report) Handoff {
	h := newHandoff(PlotGround, epochs, r)
	h.Fields = []string{"lat_deg", "lon_deg", "alt_m"}
	for _, t := range tracks {
		doc := TrackDoc{Satellite: t.Satellite, Samples: make([]SampleDoc, 0, len(t.Points))}
		for seg, pts := range Segments(t.Points) {
			for _, p := range pts {
				doc.Samples = append(doc.Samples, SampleDoc{
					Epoch:   p.Epoch,
					Coords:  [3]float64{p.LatDeg, p.LonDeg, p.AltM},
					Segment: seg,
				})
			}
		}
		h.Satellites = append(h.Satellites, doc)
	}
	return h
}

// WriteJSON encodes the handoff as indented JSON.
func (h Handoff) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(h)
}
