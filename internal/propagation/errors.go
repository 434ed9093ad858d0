package propagation

import (
	"errors"
	"fmt"
	"time"

	"github.com/star/satmap/internal/solve"
)

// ConvergenceError is returned when Kepler's equation does not converge
// within the configured bound.
type ConvergenceError = solve.ConvergenceError

// StaleElementsError is an advisory: the target epoch lies outside the window
// in which the element model is trusted. The state returned alongside it is
// still computed and usable at the caller's discretion.
type StaleElementsError struct {
	ID     string
	Age    time.Duration // target - element epoch
	Window time.Duration
}

func (e *StaleElementsError) Error() string {
	return fmt.Sprintf("elements for %s are stale: target is %s from epoch (window %s)",
		e.ID, e.Age.Round(time.Minute), e.Window)
}

// IsAdvisory reports whether err carries only a stale-elements advisory, in
// which case the accompanying state is valid.
func IsAdvisory(err error) bool {
	var stale *StaleElementsError
	return errors.As(err, &stale)
}
