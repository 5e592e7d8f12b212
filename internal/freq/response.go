package freq

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"gonum.org/v1/gonum/floats"
)

// Grid is a set of frequencies in rad/s. Order and duplicates are allowed.
type Grid []float64

// Logspace returns n frequencies spaced logarithmically from lo to hi
// inclusive.
func Logspace(lo, hi float64, n int) Grid {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return Grid{lo}
	}
	return floats.LogSpan(make([]float64, n), lo, hi)
}

// Linspace returns n evenly spaced frequencies from lo to hi inclusive.
func Linspace(lo, hi float64, n int) Grid {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return Grid{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Validate checks that g is non-empty with finite, non-negative points.
func (g Grid) Validate() error {
	if len(g) == 0 {
		return ErrEmptyGrid
	}
	for _, w := range g {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return &FrequencyError{Omega: w, Wrapped: ErrInvalidFrequency}
		}
	}
	return nil
}

// Response is a sampled transfer matrix. Values[k] holds G(jΩ[k]) in
// row-major Outputs×Inputs order.
type Response struct {
	Omega   []float64
	Values  [][]complex128
	Outputs int
	Inputs  int
}

// Evaluate computes the frequency response of sys on grid. A pole on the
// imaginary axis at a grid point yields ErrSingularFrequency; when several
// points fail, the first in grid order is reported.
func Evaluate(sys lti.StateSpace, grid Grid) (Response, error) {
	if err := grid.Validate(); err != nil {
		return Response{}, err
	}
	resp := Response{
		Omega:   append([]float64(nil), grid...),
		Values:  make([][]complex128, len(grid)),
		Outputs: sys.Outputs(),
		Inputs:  sys.Inputs(),
	}
	errs := make([]error, len(grid))
	parallelFor(len(grid), func(start, end int) {
		for k := start; k < end; k++ {
			resp.Values[k], errs[k] = evalPoint(sys, grid[k])
		}
	})
	for _, err := range errs {
		if err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

func evalPoint(sys lti.StateSpace, w float64) ([]complex128, error) {
	v, err := sys.Eval(complex(0, w))
	if err != nil {
		if errors.Is(err, lti.ErrPole) {
			return nil, &FrequencyError{Omega: w, Wrapped: ErrSingularFrequency}
		}
		return nil, &FrequencyError{Omega: w, Wrapped: err}
	}
	for _, x := range v {
		if cmplx.IsNaN(x) || cmplx.IsInf(x) {
			return nil, &FrequencyError{Omega: w, Wrapped: ErrSingularFrequency}
		}
	}
	return v, nil
}

// Len returns the number of grid points.
func (r Response) Len() int { return len(r.Omega) }

// Channel returns the (i, j) entry of the response at every grid point.
func (r Response) Channel(i, j int) ([]complex128, error) {
	if i < 0 || i >= r.Outputs || j < 0 || j >= r.Inputs {
		return nil, fmt.Errorf("%w: channel (%d,%d) of a %dx%d response", lti.ErrDimensionMismatch, i, j, r.Outputs, r.Inputs)
	}
	out := make([]complex128, len(r.Values))
	for k, v := range r.Values {
		out[k] = v[i*r.Inputs+j]
	}
	return out, nil
}

// Gain returns the magnitude and phase in degrees of channel (i, j).
func (r Response) Gain(i, j int) (mag, phase []float64, err error) {
	ch, err := r.Channel(i, j)
	if err != nil {
		return nil, nil, err
	}
	mag = make([]float64, len(ch))
	phase = make([]float64, len(ch))
	for k, v := range ch {
		mag[k] = cmplx.Abs(v)
		phase[k] = cmplx.Phase(v) * 180 / math.Pi
	}
	return mag, phase, nil
}

// Sorted returns a copy of r ordered by increasing frequency.
func (r Response) Sorted() Response {
	idx := make([]int, len(r.Omega))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return r.Omega[idx[a]] < r.Omega[idx[b]] })
	out := Response{
		Omega:   make([]float64, len(idx)),
		Values:  make([][]complex128, len(idx)),
		Outputs: r.Outputs,
		Inputs:  r.Inputs,
	}
	for k, i := range idx {
		out.Omega[k] = r.Omega[i]
		out.Values[k] = append([]complex128(nil), r.Values[i]...)
	}
	return out
}

// SingularValues returns, for each grid point, the singular values of the
// response in descending order.
func SingularValues(r Response) [][]float64 {
	out := make([][]float64, len(r.Values))
	parallelFor(len(r.Values), func(start, end int) {
		for k := start; k < end; k++ {
			out[k] = linalg.ComplexSigma(r.Values[k], r.Outputs, r.Inputs)
		}
	})
	return out
}

// MaxSingularValues returns σ̄ at each grid point.
func MaxSingularValues(r Response) []float64 {
	out := make([]float64, len(r.Values))
	parallelFor(len(r.Values), func(start, end int) {
		for k := start; k < end; k++ {
			out[k] = linalg.ComplexSigmaMax(r.Values[k], r.Outputs, r.Inputs)
		}
	})
	return out
}

// Peak is the largest σ̄ over a grid and where it occurs.
type Peak struct {
	Value float64
	Omega float64
}

// PeakNorm returns the sampled H∞ norm of r. Ties go to the lowest
// frequency so the result does not depend on grid order or duplicates.
func PeakNorm(r Response) (Peak, error) {
	if len(r.Values) == 0 {
		return Peak{}, ErrEmptyGrid
	}
	sig := MaxSingularValues(r)
	best := Peak{Value: math.Inf(-1), Omega: math.Inf(1)}
	for k, s := range sig {
		if math.IsNaN(s) {
			return Peak{}, &FrequencyError{Omega: r.Omega[k], Wrapped: ErrSingularFrequency}
		}
		w := r.Omega[k]
		if s > best.Value || (s == best.Value && w < best.Omega) {
			best = Peak{Value: s, Omega: w}
		}
	}
	return best, nil
}
