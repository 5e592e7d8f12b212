package mu

import (
	"fmt"
	"math"

	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"gonum.org/v1/gonum/optimize"
)

// ErrDimensionMismatch is returned when a structure does not fit a response.
var ErrDimensionMismatch = lti.ErrDimensionMismatch

// maxSignBlocks caps the number of blocks for which every sign pattern is
// tried in the lower bound.
const maxSignBlocks = 8

// Block is one diagonal block of the uncertainty. A repeated block is δI
// with a single scalar δ; otherwise it is a full Size×Size complex matrix.
// Real marks a real parametric uncertainty.
type Block struct {
	Size     int
	Repeated bool
	Real     bool
}

// Structure is the ordered list of uncertainty blocks.
type Structure []Block

// Dim returns the total size of the structure.
func (s Structure) Dim() int {
	n := 0
	for _, b := range s {
		n += b.Size
	}
	return n
}

func (s Structure) hasReal() bool {
	for _, b := range s {
		if b.Real {
			return true
		}
	}
	return false
}

func (s Structure) validate(resp freq.Response) error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty uncertainty structure", ErrDimensionMismatch)
	}
	for i, b := range s {
		if b.Size <= 0 {
			return fmt.Errorf("%w: block %d has size %d", ErrDimensionMismatch, i, b.Size)
		}
	}
	if n := s.Dim(); resp.Outputs != n || resp.Inputs != n {
		return fmt.Errorf("%w: structure of size %d on a %dx%d response", ErrDimensionMismatch, n, resp.Outputs, resp.Inputs)
	}
	return nil
}

// Bounds holds the µ bounds at every grid point. Scalings[k] is the
// per-block D achieving Upper[k].
type Bounds struct {
	Omega    []float64
	Upper    []float64
	Lower    []float64
	Scalings [][]float64
}

// Peak returns the largest upper bound and its frequency. Ties go to the
// lowest frequency.
func (b Bounds) Peak() (value, omega float64) {
	value, omega = math.Inf(-1), math.Inf(1)
	for k, u := range b.Upper {
		if u > value || (u == value && b.Omega[k] < omega) {
			value, omega = u, b.Omega[k]
		}
	}
	return value, omega
}

// Engine computes µ bounds for a response and uncertainty structure.
type Engine interface {
	Bounds(resp freq.Response, s Structure) (Bounds, error)
}

// DScaled is the reference engine.
type DScaled struct {
	// MaxEvaluations bounds the Nelder-Mead search at each frequency.
	MaxEvaluations int
}

// NewDScaled returns a DScaled engine with default settings.
func NewDScaled() *DScaled {
	return &DScaled{MaxEvaluations: 400}
}

// Bounds scans the grid in order, warm-starting each D search from the
// scaling found at the previous point.
func (e *DScaled) Bounds(resp freq.Response, s Structure) (Bounds, error) {
	if err := s.validate(resp); err != nil {
		return Bounds{}, err
	}
	out := Bounds{
		Omega:    append([]float64(nil), resp.Omega...),
		Upper:    make([]float64, resp.Len()),
		Lower:    make([]float64, resp.Len()),
		Scalings: make([][]float64, resp.Len()),
	}
	n := s.Dim()
	logD := make([]float64, len(s)-1)
	for k, m := range resp.Values {
		var upper float64
		upper, logD = e.upper(m, n, s, logD)
		lower := 0.0
		if !s.hasReal() {
			lower = lowerBound(m, n, s)
		}
		out.Upper[k] = math.Max(upper, lower)
		out.Lower[k] = lower
		out.Scalings[k] = scalings(logD)
	}
	return out, nil
}

func scalings(logD []float64) []float64 {
	d := make([]float64, len(logD)+1)
	for i, v := range logD {
		d[i] = math.Exp(v)
	}
	d[len(logD)] = 1
	return d
}

// scaled returns D M D⁻¹ for per-block scalings d.
func scaled(m []complex128, n int, s Structure, d []float64) []complex128 {
	full := make([]float64, 0, n)
	for i, b := range s {
		for j := 0; j < b.Size; j++ {
			full = append(full, d[i])
		}
	}
	out := make([]complex128, len(m))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = m[i*n+j] * complex(full[i]/full[j], 0)
		}
	}
	return out
}

// upper minimizes σ̄(D M D⁻¹) over log d starting from start. It never
// returns more than σ̄(M).
func (e *DScaled) upper(m []complex128, n int, s Structure, start []float64) (float64, []float64) {
	plain := linalg.ComplexSigmaMax(m, n, n)
	if len(start) == 0 {
		return plain, start
	}
	f := func(x []float64) float64 {
		for _, v := range x {
			if math.Abs(v) > 50 {
				return math.Inf(1)
			}
		}
		return linalg.ComplexSigmaMax(scaled(m, n, s, scalings(x)), n, n)
	}

	bestF, bestX := plain, make([]float64, len(start))
	if v := f(start); v < bestF {
		bestF, bestX = v, append([]float64(nil), start...)
	}
	settings := &optimize.Settings{
		FuncEvaluations: e.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-8,
			Iterations: 20,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: f}, bestX, settings, &optimize.NelderMead{})
	if err == nil && res != nil && res.F < bestF {
		bestF, bestX = res.F, res.X
	}
	return bestF, bestX
}

// lowerBound returns max ρ(U M) over block-wise sign patterns U, each of
// which is a unitary matrix commuting with the structure.
func lowerBound(m []complex128, n int, s Structure) float64 {
	k := len(s)
	if k > maxSignBlocks {
		return linalg.ComplexSpectralRadius(m, n)
	}
	best := 0.0
	um := make([]complex128, len(m))
	for mask := 0; mask < 1<<(k-1); mask++ {
		row := 0
		for i, b := range s {
			sign := complex(1, 0)
			if mask&(1<<i) != 0 {
				sign = -1
			}
			for r := 0; r < b.Size; r++ {
				for j := 0; j < n; j++ {
					um[(row+r)*n+j] = sign * m[(row+r)*n+j]
				}
			}
			row += b.Size
		}
		if rho := linalg.ComplexSpectralRadius(um, n); rho > best {
			best = rho
		}
	}
	return best
}
