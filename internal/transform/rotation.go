package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// R1 is a frame rotation about the first axis.
func R1(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

// R3 is a frame rotation about the third axis.
func R3(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// R3R1R3 is the 3-1-3 Euler rotation taking perifocal coordinates to the
// inertial frame for RAAN Ω, inclination i and argument of perigee ω.
func R3R1R3(raan, incl, argp float64) *mat.Dense {
	var m, pqw mat.Dense
	m.Mul(R3(-raan), R1(-incl))
	pqw.Mul(&m, R3(-argp))
	return &pqw
}

// MxV33 multiplies a 3x3 matrix with a 3-vector.
func MxV33(m mat.Matrix, v [3]float64) [3]float64 {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, v[:]))
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// Norm returns the Euclidean length of v.
func Norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
