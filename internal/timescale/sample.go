package timescale

import (
	"fmt"
	"iter"
	"math"
	"time"
)

// InvalidRangeError reports a malformed sampling window.
type InvalidRangeError struct {
	Start, End Epoch
	Step       time.Duration
	Reason     string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range [%s, %s] step %s: %s", e.Start, e.End, e.Step, e.Reason)
}

// MaxEpochs bounds the length of a sampled sequence.
const MaxEpochs = 1 << 26

// maxSpan is the longest window whose offsets fit a time.Duration.
var maxSpan = time.Duration(math.MaxInt64).Seconds()

// Sequence is a finite, ordered run of epochs spaced by a fixed step.
// It holds no iteration state, so All may be ranged over any number of times.
type Sequence struct {
	start Epoch
	step  time.Duration
	n     int
}

// SampleEpochs returns the epochs start, start+step, ... up to and including
// end when end falls on a step boundary.
func SampleEpochs(start, end Epoch, step time.Duration) (Sequence, error) {
	if step <= 0 {
		return Sequence{}, &InvalidRangeError{Start: start, End: end, Step: step, Reason: "step must be positive"}
	}
	span := end.Sub(start)
	if span < 0 {
		return Sequence{}, &InvalidRangeError{Start: start, End: end, Step: step, Reason: "end is before start"}
	}
	if span > maxSpan {
		return Sequence{}, &InvalidRangeError{Start: start, End: end, Step: step, Reason: "window too long"}
	}
	// Tolerate float noise on the final boundary.
	count := math.Floor(span/step.Seconds()+1e-9) + 1
	if count > MaxEpochs {
		return Sequence{}, &InvalidRangeError{Start: start, End: end, Step: step,
			Reason: fmt.Sprintf("%.0f epochs exceeds the limit of %d", count, MaxEpochs)}
	}
	n := int(count)
	return Sequence{start: start, step: step, n: n}, nil
}

// Len returns the number of epochs.
func (s Sequence) Len() int {
	return s.n
}

// Step returns the spacing between epochs.
func (s Sequence) Step() time.Duration {
	return s.step
}

// At returns the i-th epoch. It panics if i is out of range.
func (s Sequence) At(i int) Epoch {
	if i < 0 || i >= s.n {
		panic(fmt.Sprintf("timescale: index %d out of range [0, %d)", i, s.n))
	}
	return s.start.AddDuration(time.Duration(i) * s.step)
}

// All yields (index, epoch) pairs in ascending order.
func (s Sequence) All() iter.Seq2[int, Epoch] {
	return func(yield func(int, Epoch) bool) {
		for i := 0; i < s.n; i++ {
			if !yield(i, s.At(i)) {
				return
			}
		}
	}
}

// Epochs materializes the sequence.
func (s Sequence) Epochs() []Epoch {
	out := make([]Epoch, 0, s.n)
	for _, e := range s.All() {
		out = append(out, e)
	}
	return out
}
