// Package solve holds the bounded iterative solvers used by propagation and
// frame transforms. Every solver takes an explicit tolerance and iteration
// bound and returns *ConvergenceError instead of a degraded result.
package solve

import (
	"fmt"
	"math"
)

// Default bounds.
const (
	KeplerTolerance = 1e-12 // rad
	KeplerMaxIter   = 30
)

// ConvergenceError reports an iterative solver that hit its iteration bound.
type ConvergenceError struct {
	Solver     string
	Iterations int
	Residual   float64
	Tolerance  float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s did not converge after %d iterations (residual %.3e > tolerance %.3e)",
		e.Solver, e.Iterations, e.Residual, e.Tolerance)
}

// Kepler solves M = E - e sin E for the eccentric anomaly E (radians) with
// Newton's method. Valid for elliptical orbits, 0 <= e < 1.
func Kepler(meanAnomaly, ecc, tol float64, maxIter int) (float64, error) {
	if ecc < 0 || ecc >= 1 || math.IsNaN(ecc) {
		return 0, fmt.Errorf("kepler: eccentricity %g outside [0, 1)", ecc)
	}
	if math.IsNaN(meanAnomaly) || math.IsInf(meanAnomaly, 0) {
		return 0, fmt.Errorf("kepler: mean anomaly is %g", meanAnomaly)
	}
	m := math.Remainder(meanAnomaly, 2*math.Pi)

	// High eccentricity starts from pi to keep Newton away from the cusp.
	e := m
	if ecc > 0.8 {
		e = math.Pi * sign(m)
	}

	var delta float64
	for i := 0; i < maxIter; i++ {
		sinE, cosE := math.Sincos(e)
		delta = (e - ecc*sinE - m) / (1 - ecc*cosE)
		e -= delta
		if math.Abs(delta) <= tol {
			return e + (meanAnomaly - m), nil
		}
	}
	return 0, &ConvergenceError{Solver: "kepler", Iterations: maxIter, Residual: math.Abs(delta), Tolerance: tol}
}

// FixedPoint iterates x = f(x) from x0 until successive values differ by at
// most tol.
func FixedPoint(name string, f func(float64) float64, x0, tol float64, maxIter int) (float64, error) {
	x := x0
	var delta float64
	for i := 0; i < maxIter; i++ {
		next := f(x)
		delta = math.Abs(next - x)
		x = next
		if delta <= tol {
			return x, nil
		}
	}
	return 0, &ConvergenceError{Solver: name, Iterations: maxIter, Residual: delta, Tolerance: tol}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
