package sampler

import (
	"slices"

	"github.com/star/satmap/internal/propagation"
)

// sortFailures orders pair failures by satellite input position, then epoch index.
func sortFailures(fs []Failure, elements []propagation.Elements) {
	pos := make(map[string]int, len(elements))
	for i, el := range elements {
		pos[el.ID] = i
	}
	slices.SortFunc(fs, func(a, b Failure) int {
		if d := pos[a.SatelliteID] - pos[b.SatelliteID]; d != 0 {
			return d
		}
		return a.Index - b.Index
	})
}
