package transform

import (
	"math"

	"github.com/star/satmap/internal/timescale"
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// GMST calculates Greenwich Mean Sidereal Time in radians for an epoch.
// Uses the IAU-82 model as described in Vallado "Fundamentals of Astrodynamics".
//
// Formula (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0, result is in seconds of time.
// UT1 is taken equal to UTC.
func GMST(e timescale.Epoch) float64 {
	tUT1 := e.CenturiesSinceJ2000()

	// 876600h = 876600 * 3600 = 3155760000 seconds.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, timescale.SecondsPerDay)
	if gmstSec < 0 {
		gmstSec += timescale.SecondsPerDay
	}
	return gmstSec / timescale.SecondsPerDay * 2.0 * math.Pi
}
