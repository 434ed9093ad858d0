package timescale

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scale is a time scale with a fixed offset from UTC: a clock running on the
// scale reads UTC + Offset.
type Scale struct {
	Name   string
	Offset time.Duration
}

// UTC is the reference scale.
var UTC = Scale{Name: "UTC"}

// DefaultOffsets holds the system-time offsets from UTC in effect since the
// 2017-01-01 leap second. GLONASS time is Moscow time and follows UTC leap
// seconds.
var DefaultOffsets = map[string]time.Duration{
	"UTC":      0,
	"GPS":      18 * time.Second,
	"GST":      18 * time.Second, // Galileo is steered to GPS time
	"BDT":      4 * time.Second,  // BeiDou started at GPS-14s
	"GLONASST": 3 * time.Hour,
}

// ToContinuous converts a timestamp read on this scale to an Epoch.
func (s Scale) ToContinuous(t time.Time) Epoch {
	return ToContinuous(t.Add(-s.Offset))
}

// ToCalendar converts an Epoch to a timestamp read on this scale.
func (s Scale) ToCalendar(e Epoch) time.Time {
	return ToCalendar(e).Add(s.Offset)
}

// Registry resolves scale names to scales. It is a value type; build it once
// from configuration and pass it around.
type Registry struct {
	scales map[string]Scale
}

// NewRegistry returns a registry seeded with DefaultOffsets and then the
// given overrides. Names are case-insensitive.
func NewRegistry(overrides map[string]time.Duration) Registry {
	r := Registry{scales: make(map[string]Scale, len(DefaultOffsets)+len(overrides))}
	for name, off := range DefaultOffsets {
		r.scales[name] = Scale{Name: name, Offset: off}
	}
	for name, off := range overrides {
		name = strings.ToUpper(strings.TrimSpace(name))
		r.scales[name] = Scale{Name: name, Offset: off}
	}
	return r
}

// Lookup returns the scale registered under name. An empty name means UTC.
func (r Registry) Lookup(name string) (Scale, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return UTC, nil
	}
	s, ok := r.scales[name]
	if !ok {
		return Scale{}, fmt.Errorf("unknown time scale %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

// Names returns the registered scale names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.scales))
	for name := range r.scales {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
