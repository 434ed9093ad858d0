package ephem

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/timescale"
)

// keplerianFile is the on-disk JSON shape of a Keplerian element file.
// Epochs are read in the file's time scale (e.g. "GPS") and converted to
// UTC-referenced epochs on load.
//
//	{
//	  "time_scale": "GPS",
//	  "group": "GPS-ALMANAC",
//	  "satellites": [
//	    {"id": "G01", "name": "GPS PRN 01", "epoch": "2024-04-09T12:00:18Z",
//	     "semi_major_axis_km": 26560.1, "eccentricity": 0.004, ...}
//	  ]
//	}
type keplerianFile struct {
	TimeScale  string            `json:"time_scale"`
	Group      string            `json:"group"`
	Satellites []keplerianRecord `json:"satellites"`
}

type keplerianRecord struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Group string    `json:"group"`
	Epoch time.Time `json:"epoch"`
	propagation.Keplerian
}

// ParseKeplerian decodes a JSON Keplerian element file. group is used for
// records and files that do not name one.
func ParseKeplerian(r io.Reader, group string, scales timescale.Registry) ([]propagation.Elements, error) {
	var f keplerianFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding keplerian elements: %w", err)
	}

	scale, err := scales.Lookup(f.TimeScale)
	if err != nil {
		return nil, err
	}
	if f.Group != "" {
		group = f.Group
	}

	out := make([]propagation.Elements, 0, len(f.Satellites))
	for i, rec := range f.Satellites {
		if rec.ID == "" {
			return nil, fmt.Errorf("keplerian record %d: missing id", i)
		}
		if rec.Epoch.IsZero() {
			return nil, fmt.Errorf("keplerian record %s: missing epoch", rec.ID)
		}
		g := rec.Group
		if g == "" {
			g = group
		}
		name := rec.Name
		if name == "" {
			name = rec.ID
		}
		out = append(out, propagation.Elements{
			ID:        rec.ID,
			Name:      name,
			Group:     g,
			Epoch:     scale.ToContinuous(rec.Epoch),
			Kind:      propagation.KindKeplerian,
			Keplerian: rec.Keplerian,
		})
	}
	return out, nil
}
