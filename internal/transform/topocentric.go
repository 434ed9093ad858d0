package transform

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"
	"github.com/star/satmap/internal/timescale"
	"gonum.org/v1/gonum/mat"
)

// Observer holds a ground observer's location in both geodetic and ECEF frames.
// ECEF coordinates and the local horizon rotation are precomputed once so they
// can be reused across many satellite lookups. Immutable after construction.
type Observer struct {
	LatDeg, LonDeg, AltM float64 // geodetic (degrees, meters above ellipsoid)
	ECEFx, ECEFy, ECEFz  float64 // precomputed ECEF (meters)

	enu *mat.Dense // ECEF → east, north, up
}

// LookAngles holds azimuth, elevation, and range from observer to satellite.
type LookAngles struct {
	Epoch        timescale.Epoch
	AzimuthDeg   float64 // [0, 360), 0 = North, clockwise
	ElevationDeg float64 // [-90, 90], 0 = horizon, 90 = zenith
	RangeKm      float64
}

// NewObserver creates an Observer from geodetic coordinates.
// Latitude and longitude are in degrees, altitude in meters above the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, altM float64) (Observer, error) {
	switch {
	case math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90:
		return Observer{}, fmt.Errorf("observer latitude %g outside [-90, 90]", latDeg)
	case math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0):
		return Observer{}, fmt.Errorf("observer longitude %g is not finite", lonDeg)
	case math.IsNaN(altM) || math.IsInf(altM, 0):
		return Observer{}, fmt.Errorf("observer altitude %g is not finite", altM)
	}

	lonDeg = WrapLongitude(lonDeg)
	x, y, z := GeodeticToECEF(latDeg, lonDeg, altM)

	return Observer{
		LatDeg: latDeg,
		LonDeg: lonDeg,
		AltM:   altM,
		ECEFx:  x,
		ECEFy:  y,
		ECEFz:  z,
		enu:    horizonFrame(latDeg, lonDeg),
	}, nil
}

// horizonFrame is the ECEF to east-north-up rotation at a geodetic location.
func horizonFrame(latDeg, lonDeg float64) *mat.Dense {
	sinLat, cosLat := math.Sincos(unit.AngleFromDeg(latDeg).Rad())
	sinLon, cosLon := math.Sincos(unit.AngleFromDeg(lonDeg).Rad())
	return mat.NewDense(3, 3, []float64{
		-sinLon, cosLon, 0,
		-sinLat * cosLon, -sinLat * sinLon, cosLat,
		cosLat * cosLon, cosLat * sinLon, sinLat,
	})
}

// MustObserver is NewObserver for known-good literals. It panics on error.
func MustObserver(latDeg, lonDeg, altM float64) Observer {
	obs, err := NewObserver(latDeg, lonDeg, altM)
	if err != nil {
		panic(err)
	}
	return obs
}

// ToTopocentric computes azimuth, elevation, and range from an observer to a
// satellite position, tagged with the position's epoch.
//
// The line of sight is rotated into the observer's east-north-up frame.
// Azimuth: 0 = North, measured clockwise. Elevation: 0 = horizon, 90 = zenith.
// Negative elevations are returned as-is; filtering is the caller's choice.
// A satellite at the zenith has an undefined azimuth, reported as 0.
// An Observer not built by NewObserver is located by its geodetic fields.
func ToTopocentric(pos PositionECEF, obs Observer) LookAngles {
	if obs.enu == nil {
		obs.ECEFx, obs.ECEFy, obs.ECEFz = GeodeticToECEF(obs.LatDeg, obs.LonDeg, obs.AltM)
		obs.enu = horizonFrame(obs.LatDeg, obs.LonDeg)
	}
	rho := [3]float64{pos.X - obs.ECEFx, pos.Y - obs.ECEFy, pos.Z - obs.ECEFz}
	enu := MxV33(obs.enu, rho)
	east, north, up := enu[0], enu[1], enu[2]

	rangeMag := Norm(enu)
	horiz := math.Hypot(east, north)

	el := math.Atan2(up, horiz)

	var az float64
	if horiz > 1e-9*rangeMag {
		az = math.Atan2(east, north)
		if az < 0 {
			az += 2 * math.Pi
		}
	}

	azDeg := unit.Angle(az).Deg()
	if azDeg >= 360 {
		azDeg -= 360
	}

	return LookAngles{
		Epoch:        pos.Epoch,
		AzimuthDeg:   azDeg,
		ElevationDeg: unit.Angle(el).Deg(),
		RangeKm:      rangeMag / 1000.0,
	}
}
