// Package timescale converts between calendar timestamps and the continuous
// Julian-date scale used by propagation, and samples query epochs.
//
// An Epoch is always referenced to UTC. GNSS system times (GPS, Galileo,
// BeiDou, GLONASS) are handled by Scale, which removes a fixed offset before
// the timestamp enters the continuous scale.
package timescale

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	// J2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00).
	J2000 = 2451545.0

	// SecondsPerDay is the length of a day on the continuous scale.
	SecondsPerDay = 86400.0

	nanosPerDay = SecondsPerDay * 1e9
)

// Epoch is a point on the continuous UTC-referenced Julian-date scale.
//
// The Julian date is held as the date of the preceding midnight (always x.5)
// plus the fraction of the day, so sub-microsecond resolution survives
// arithmetic far from J2000.
type Epoch struct {
	day  float64 // Julian date at 0h UTC
	frac float64 // [0, 1)
}

// ToContinuous converts a timestamp to an Epoch. Non-UTC locations are
// converted to UTC first.
func ToContinuous(t time.Time) Epoch {
	t = t.UTC()
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Epoch{
		day:  julian.CalendarGregorianToJD(y, int(m), float64(d)),
		frac: float64(t.Sub(midnight)) / nanosPerDay,
	}
}

// FromJD builds an Epoch from a single Julian date.
func FromJD(jd float64) Epoch {
	day := math.Floor(jd-0.5) + 0.5
	return normalize(day, jd-day)
}

// ToCalendar converts an Epoch back to a UTC timestamp.
func ToCalendar(e Epoch) time.Time {
	y, m, d := julian.JDToCalendar(e.day)
	midnight := time.Date(y, time.Month(m), int(math.Round(d)), 0, 0, 0, 0, time.UTC)
	return midnight.Add(time.Duration(math.Round(e.frac * nanosPerDay)))
}

func normalize(day, frac float64) Epoch {
	whole := math.Floor(frac)
	return Epoch{day: day + whole, frac: frac - whole}
}

// JD returns the epoch as a single Julian date.
func (e Epoch) JD() float64 {
	return e.day + e.frac
}

// CenturiesSinceJ2000 returns Julian centuries elapsed since J2000.0.
func (e Epoch) CenturiesSinceJ2000() float64 {
	return ((e.day - J2000) + e.frac) / 36525.0
}

// Sub returns e - o in seconds.
func (e Epoch) Sub(o Epoch) float64 {
	return ((e.day - o.day) + (e.frac - o.frac)) * SecondsPerDay
}

// Add returns the epoch shifted by the given number of seconds.
func (e Epoch) Add(seconds float64) Epoch {
	return normalize(e.day, e.frac+seconds/SecondsPerDay)
}

// AddDuration returns the epoch shifted by d.
func (e Epoch) AddDuration(d time.Duration) Epoch {
	return normalize(e.day, e.frac+float64(d)/nanosPerDay)
}

// Before reports whether e is earlier than o.
func (e Epoch) Before(o Epoch) bool {
	return e.Sub(o) < 0
}

// Equal reports whether e and o denote the same instant.
func (e Epoch) Equal(o Epoch) bool {
	return e.day == o.day && e.frac == o.frac
}

// IsZero reports whether e is the zero Epoch.
func (e Epoch) IsZero() bool {
	return e.day == 0 && e.frac == 0
}

// Time is shorthand for ToCalendar(e).
func (e Epoch) Time() time.Time {
	return ToCalendar(e)
}

func (e Epoch) String() string {
	return ToCalendar(e).Format(time.RFC3339Nano)
}

// MarshalText encodes the epoch as an RFC 3339 UTC timestamp.
func (e Epoch) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText parses an RFC 3339 timestamp.
func (e *Epoch) UnmarshalText(b []byte) error {
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return err
	}
	*e = ToContinuous(t)
	return nil
}
