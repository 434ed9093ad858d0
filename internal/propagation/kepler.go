package propagation

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"

	"github.com/star/satmap/internal/solve"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// Earth constants for the two-body model (WGS-84).
const (
	EarthMu     = 398600.4418 // km³/s²
	EarthRadius = 6378.137    // km
	EarthJ2     = 1.08262668e-3
)

// SolveKepler solves Kepler's equation M = E - e sin E for the eccentric
// anomaly. It is pure and returns *ConvergenceError on overrun.
func SolveKepler(meanAnomaly, ecc, tol float64, maxIter int) (float64, error) {
	return solve.Kepler(meanAnomaly, ecc, tol, maxIter)
}

// keplerModel propagates a Keplerian element set with two-body motion and
// optional J2 secular rates.
type keplerModel struct {
	epoch timescale.Epoch
	mu    float64
	a     float64 // km
	ecc   float64
	incl  float64 // rad
	raan0 float64
	argp0 float64
	mean0 float64

	meanRate float64 // rad/s, includes J2 correction when enabled
	raanRate float64
	argpRate float64

	tol     float64
	maxIter int
}

func newKeplerModel(el Elements, cfg PropConfig) (*keplerModel, error) {
	k := el.Keplerian
	switch {
	case !(k.SemiMajorAxisKm > 0) || math.IsInf(k.SemiMajorAxisKm, 0):
		return nil, fmt.Errorf("semi-major axis %g km must be positive", k.SemiMajorAxisKm)
	case !(k.Eccentricity >= 0 && k.Eccentricity < 1):
		return nil, fmt.Errorf("eccentricity %g outside [0, 1)", k.Eccentricity)
	case !(k.InclinationDeg >= 0 && k.InclinationDeg <= 180):
		return nil, fmt.Errorf("inclination %g deg outside [0, 180]", k.InclinationDeg)
	case k.SemiMajorAxisKm*(1-k.Eccentricity) < EarthRadius:
		return nil, fmt.Errorf("perigee radius %.1f km is inside the Earth", k.SemiMajorAxisKm*(1-k.Eccentricity))
	}
	for _, v := range []float64{k.RAANDeg, k.ArgPerigeeDeg, k.MeanAnomalyDeg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("angle %g is not finite", v)
		}
	}

	mu := k.Mu
	if mu == 0 {
		mu = EarthMu
	}
	m := &keplerModel{
		epoch:   el.Epoch,
		mu:      mu,
		a:       k.SemiMajorAxisKm,
		ecc:     k.Eccentricity,
		incl:    unit.AngleFromDeg(k.InclinationDeg).Rad(),
		raan0:   unit.AngleFromDeg(k.RAANDeg).Rad(),
		argp0:   unit.AngleFromDeg(k.ArgPerigeeDeg).Rad(),
		mean0:   unit.AngleFromDeg(k.MeanAnomalyDeg).Rad(),
		tol:     cfg.KeplerTol,
		maxIter: cfg.KeplerMaxIter,
	}
	n := math.Sqrt(mu / (m.a * m.a * m.a))
	m.meanRate = n
	if k.J2 {
		// Secular rates, Vallado Eq 9-41.
		p := m.a * (1 - m.ecc*m.ecc)
		f := 1.5 * EarthJ2 * (EarthRadius / p) * (EarthRadius / p) * n
		sinI, cosI := math.Sincos(m.incl)
		m.raanRate = -f * cosI
		m.argpRate = f * (2 - 2.5*sinI*sinI)
		m.meanRate += f * math.Sqrt(1-m.ecc*m.ecc) * (1 - 1.5*sinI*sinI)
	}
	return m, nil
}

func (m *keplerModel) stateAt(target timescale.Epoch) (StateVector, error) {
	dt := target.Sub(m.epoch)
	raan := m.raan0 + m.raanRate*dt
	argp := m.argp0 + m.argpRate*dt
	mean := m.mean0 + m.meanRate*dt

	ea, err := SolveKepler(mean, m.ecc, m.tol, m.maxIter)
	if err != nil {
		return StateVector{}, err
	}
	sinE, cosE := math.Sincos(ea)
	beta := math.Sqrt(1 - m.ecc*m.ecc)
	nu := math.Atan2(beta*sinE, cosE-m.ecc)
	r := m.a * (1 - m.ecc*cosE)

	// The 3-1-3 rotation is continuous at e = 0 and i = 0: a circular orbit
	// only sees argp + nu and an equatorial one raan + argp, so no angle
	// needs special handling in this direction.
	sinNu, cosNu := math.Sincos(nu)
	vScale := math.Sqrt(m.mu / (m.a * beta * beta))
	rot := transform.R3R1R3(raan, m.incl, argp)
	return StateVector{
		Epoch:    target,
		Frame:    transform.FrameECI,
		Position: transform.MxV33(rot, [3]float64{r * cosNu, r * sinNu, 0}),
		Velocity: transform.MxV33(rot, [3]float64{-vScale * sinNu, vScale * (m.ecc + cosNu), 0}),
	}, nil
}
