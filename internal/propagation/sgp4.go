package propagation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output and WGS-84 gravity constants.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. We detect propagation failures by checking output for NaN/Inf
// and unreasonable position magnitudes. The library's time arguments are whole
// seconds, so states are evaluated at the nearest second and tagged with that
// epoch; frame rotation then uses the same instant.

// sgp4Model wraps the go-satellite library for a single satellite.
type sgp4Model struct {
	sat satellite.Satellite
	id  string
}

// newSGP4Model creates an SGP4 model from TLE lines.
//
// Pre-validates TLE format before passing to the library, because go-satellite
// calls log.Fatal on malformed input (which would kill the process).
func newSGP4Model(el Elements) (*sgp4Model, error) {
	if err := validateTLELines(el.TLE.Line1, el.TLE.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for %s: %w", el.ID, err)
	}

	sat := satellite.TLEToSat(strings.TrimSpace(el.TLE.Line1), strings.TrimSpace(el.TLE.Line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %s: code=%d %s", el.ID, sat.Error, sat.ErrorStr)
	}
	return &sgp4Model{sat: sat, id: el.ID}, nil
}

// validateTLELines performs basic format validation on TLE lines.
// This prevents passing garbage to go-satellite which calls log.Fatal on parse errors.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	if line1[2:7] != line2[2:7] {
		return fmt.Errorf("catalog numbers differ: %q vs %q", line1[2:7], line2[2:7])
	}
	for _, l := range []string{line1, line2} {
		if !checksumOK(l) {
			return fmt.Errorf("checksum mismatch on line %c", l[0])
		}
	}
	return nil
}

// checksumOK verifies the modulo-10 checksum in column 69: digits count their
// value, minus signs count one.
func checksumOK(line string) bool {
	sum := 0
	for _, c := range line[:68] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return byte('0'+sum%10) == line[68]
}

// TLEEpoch parses the epoch field (columns 19-32, YYDDD.DDDDDDDD) of a TLE
// line 1. Years 57-99 are 1900s, 00-56 are 2000s.
func TLEEpoch(line1 string) (timescale.Epoch, error) {
	if len(line1) < 32 {
		return timescale.Epoch{}, fmt.Errorf("line1 too short for epoch: %d chars", len(line1))
	}
	s := strings.TrimSpace(line1[18:32])
	if len(s) < 5 {
		return timescale.Epoch{}, fmt.Errorf("epoch string too short: %q", s)
	}
	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return timescale.Epoch{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}
	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return timescale.Epoch{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return timescale.Epoch{}, fmt.Errorf("epoch day %g out of range", dayOfYear)
	}
	// dayOfYear is 1-based: day 1 = Jan 1.
	start := timescale.ToContinuous(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
	return start.Add((dayOfYear - 1) * timescale.SecondsPerDay), nil
}

// stateAt computes the TEME state (km, km/s) at the whole second nearest target.
func (m *sgp4Model) stateAt(target timescale.Epoch) (StateVector, error) {
	t := timescale.ToCalendar(target).Round(time.Second)
	pos, vel := satellite.Propagate(m.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	// Detect propagation failures via NaN/Inf check.
	for _, v := range []float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return StateVector{}, fmt.Errorf("sgp4 propagation failed for %s: output is NaN/Inf", m.id)
		}
	}

	// Sanity check: position magnitude should be between ~6200km and ~50000km.
	r := [3]float64{pos.X, pos.Y, pos.Z}
	if mag := transform.Norm(r); mag < 6200.0 || mag > 50000.0 {
		return StateVector{}, fmt.Errorf("sgp4 propagation failed for %s: unreasonable position magnitude %.1f km", m.id, mag)
	}

	return StateVector{
		Epoch:    timescale.ToContinuous(t),
		Frame:    transform.FrameTEME,
		Position: r,
		Velocity: [3]float64{vel.X, vel.Y, vel.Z},
	}, nil
}
