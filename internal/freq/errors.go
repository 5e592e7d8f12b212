package freq

import (
	"errors"
	"fmt"
)

var (
	// ErrSingularFrequency indicates a grid point at which jωI - A is
	// singular, that is a pole on the imaginary axis.
	ErrSingularFrequency = errors.New("freq: system is singular at frequency")

	// ErrEmptyGrid indicates a grid with no points.
	ErrEmptyGrid = errors.New("freq: empty frequency grid")

	// ErrInvalidFrequency indicates a negative or non-finite grid point.
	ErrInvalidFrequency = errors.New("freq: invalid frequency")
)

// FrequencyError attaches the offending frequency to an evaluation failure.
type FrequencyError struct {
	Omega   float64
	Wrapped error
}

func (e *FrequencyError) Error() string {
	return fmt.Sprintf("%v (omega=%g rad/s)", e.Wrapped, e.Omega)
}

func (e *FrequencyError) Unwrap() error {
	return e.Wrapped
}
