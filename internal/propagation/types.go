package propagation

import (
	"runtime"
	"time"

	"github.com/star/satmap/internal/solve"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// StateVector is a propagated inertial state (km, km/s) tagged with its epoch.
type StateVector = transform.StateVector

// Kind tags the orbital element model carried by Elements.
type Kind int

const (
	// KindKeplerian is a classical osculating/mean Keplerian set propagated
	// with two-body motion, optionally with J2 secular drift.
	KindKeplerian Kind = iota + 1
	// KindTLE is a NORAD two-line mean element set propagated with SGP4.
	KindTLE
)

func (k Kind) String() string {
	switch k {
	case KindKeplerian:
		return "keplerian"
	case KindTLE:
		return "tle"
	default:
		return "unknown"
	}
}

// Elements identifies one satellite and carries its orbital elements at a
// reference epoch. Only the field matching Kind is read.
// Treat as immutable once loaded.
type Elements struct {
	ID    string // stable identity, e.g. NORAD ID or PRN
	Name  string
	Group string // constellation group, e.g. GPS-OPS
	Epoch timescale.Epoch
	Kind  Kind

	Keplerian Keplerian
	TLE       TLE
}

// Keplerian holds classical orbital elements. Angles in degrees.
type Keplerian struct {
	SemiMajorAxisKm float64 `json:"semi_major_axis_km"`
	Eccentricity    float64 `json:"eccentricity"`
	InclinationDeg  float64 `json:"inclination_deg"`
	RAANDeg         float64 `json:"raan_deg"`
	ArgPerigeeDeg   float64 `json:"arg_perigee_deg"`
	MeanAnomalyDeg  float64 `json:"mean_anomaly_deg"`

	Mu float64 `json:"mu,omitempty"` // km³/s²; zero selects EarthMu
	J2 bool    `json:"j2,omitempty"` // apply J2 secular rates
}

// TLE holds the two data lines of a NORAD element set.
type TLE struct {
	Line1 string
	Line2 string
}

// PropConfig holds propagation configuration.
type PropConfig struct {
	Workers        int           // Worker pool size (default: runtime.NumCPU())
	KeplerTol      float64       // Kepler solver tolerance, rad
	KeplerMaxIter  int           // Kepler solver iteration bound
	StaleTLE       time.Duration // SGP4 validity window around the element epoch
	StaleKeplerian time.Duration // two-body validity window around the element epoch
}

// DefaultPropConfig returns the defaults used when no configuration overrides them.
func DefaultPropConfig() PropConfig {
	return PropConfig{
		Workers:        runtime.NumCPU(),
		KeplerTol:      solve.KeplerTolerance,
		KeplerMaxIter:  solve.KeplerMaxIter,
		StaleTLE:       30 * 24 * time.Hour,
		StaleKeplerian: 7 * 24 * time.Hour,
	}
}

// window returns the validity window for an element kind.
func (c PropConfig) window(k Kind) time.Duration {
	if k == KindTLE {
		return c.StaleTLE
	}
	return c.StaleKeplerian
}
