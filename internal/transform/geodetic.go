package transform

import (
	"math"

	"github.com/soniakeys/unit"
	"github.com/star/satmap/internal/solve"
	"github.com/star/satmap/internal/timescale"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
	wgs84B  = wgs84A * (1 - wgs84F) // semi-minor axis (meters)
)

// Geodetic iteration bounds.
const (
	GeodeticTolerance = 1e-12 // rad, ~6 µm on the surface
	GeodeticMaxIter   = 10
)

// ConvergenceError is returned when the geodetic latitude iteration hits
// its bound.
type ConvergenceError = solve.ConvergenceError

// GroundPoint holds a geodetic position (latitude/longitude in degrees, altitude in meters).
// Longitude is always in [-180, 180).
type GroundPoint struct {
	Epoch                timescale.Epoch
	LatDeg, LonDeg, AltM float64
}

// ToGeodetic converts an ECEF position to geodetic coordinates on the WGS-84
// ellipsoid, tagged with the position's epoch.
func ToGeodetic(pos PositionECEF) (GroundPoint, error) {
	gp, err := ECEFToGeodetic(pos.X, pos.Y, pos.Z, GeodeticTolerance, GeodeticMaxIter)
	if err != nil {
		return GroundPoint{}, err
	}
	gp.Epoch = pos.Epoch
	return gp, nil
}

// ECEFToGeodetic converts ECEF coordinates (meters) to geodetic coordinates
// by iterating latitude with the Bowring starting point. Converges in a
// handful of iterations for anything from the surface to GEO.
func ECEFToGeodetic(x, y, z, tol float64, maxIter int) (GroundPoint, error) {
	lon := math.Atan2(y, x)
	p := math.Hypot(x, y)

	step := func(lat float64) float64 {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		return math.Atan2(z+wgs84E2*n*sinLat, p)
	}

	lat, err := solve.FixedPoint("geodetic latitude", step, math.Atan2(z, p*(1-wgs84E2)), tol, maxIter)
	if err != nil {
		return GroundPoint{}, err
	}

	sinLat, cosLat := math.Sincos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	// Near the poles p/cos(lat) is ill-conditioned; use the z component.
	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(z) - wgs84B
	}

	return GroundPoint{
		LatDeg: unit.Angle(lat).Deg(),
		LonDeg: WrapLongitude(unit.Angle(lon).Deg()),
		AltM:   alt,
	}, nil
}

// GeodeticToECEF converts geodetic coordinates (degrees, meters above the
// WGS-84 ellipsoid) to ECEF meters.
func GeodeticToECEF(latDeg, lonDeg, altM float64) (x, y, z float64) {
	sinLat, cosLat := math.Sincos(unit.AngleFromDeg(latDeg).Rad())
	sinLon, cosLon := math.Sincos(unit.AngleFromDeg(lonDeg).Rad())

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	x = (n + altM) * cosLat * cosLon
	y = (n + altM) * cosLat * sinLon
	z = (n*(1-wgs84E2) + altM) * sinLat
	return x, y, z
}

// WrapLongitude maps a longitude in degrees into [-180, 180).
func WrapLongitude(lon float64) float64 {
	w := lon - 360*math.Floor((lon+180)/360)
	if w >= 180 {
		w -= 360
	}
	return w
}
