// Package transform provides coordinate frame transformations for satellite positions.
//
// The chain is inertial (TEME from SGP4, or the two-body ECI frame) to ECEF
// (Earth-Centered Earth-Fixed), and from ECEF to either geodetic coordinates
// for ground tracks or topocentric look angles for an observer.
//
// Method: Simplified Vallado-style rotation using GMST only (inertial → PEF ≈ ECEF).
// This ignores polar motion and equation of equinoxes, which introduces ~50m error
// at LEO and well under a kilometre at GNSS altitude; acceptable for sky plots.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"

	"github.com/star/satmap/internal/timescale"
)

// Inertial frame names.
const (
	FrameTEME = "TEME"
	FrameECI  = "ECI"
)

// StateVector is a satellite position and velocity in an inertial frame.
type StateVector struct {
	Epoch    timescale.Epoch
	Frame    string
	Position [3]float64 // km
	Velocity [3]float64 // km/s
}

// PositionECEF represents a satellite position and velocity in the ECEF frame.
type PositionECEF struct {
	Epoch      timescale.Epoch
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

// InertialToEarthFixed rotates an inertial state into ECEF using the
// sidereal angle of the state's own epoch.
// Input: km and km/s. Output: meters and m/s.
func InertialToEarthFixed(sv StateVector) PositionECEF {
	return InertialToEarthFixedWithGMST(sv, GMST(sv.Epoch))
}

// InertialToEarthFixedWithGMST transforms using a precomputed GMST angle (radians).
// Useful when many satellites share an epoch. The caller must pass
// GMST(sv.Epoch).
//
// Position transform: r_ECEF = R3(θ) * r_I
// Velocity transform: v_ECEF = R3(θ) * v_I - ω × r_ECEF
func InertialToEarthFixedWithGMST(sv StateVector, gmst float64) PositionECEF {
	rot := R3(gmst)
	r := MxV33(rot, sv.Position)
	v := MxV33(rot, sv.Velocity)

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	v[0] += OmegaEarth * r[1]
	v[1] -= OmegaEarth * r[0]

	return PositionECEF{
		Epoch: sv.Epoch,
		X:     r[0] * 1000.0,
		Y:     r[1] * 1000.0,
		Z:     r[2] * 1000.0,
		VX:    v[0] * 1000.0,
		VY:    v[1] * 1000.0,
		VZ:    v[2] * 1000.0,
	}
}

// ValidateECEF checks that an ECEF position is physically reasonable for an
// Earth-orbiting satellite. Returns true if valid.
// Expected: magnitude between Earth radius (~6371km) and ~50000km (above GEO).
func ValidateECEF(pos PositionECEF) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return false
	}
	if math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)

	const minRadius = 6200.0 * 1000.0
	const maxRadius = 50000.0 * 1000.0

	return mag >= minRadius && mag <= maxRadius
}
