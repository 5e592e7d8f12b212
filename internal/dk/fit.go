package dk

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/san-kum/loopshape/internal/lti"
	"gonum.org/v1/gonum/optimize"
)

// Fitter turns sampled scaling magnitudes into a stable, minimum-phase
// SISO system. Order 0 fits a constant; order 1 fits k(s+a)/(s+b).
type Fitter struct {
	Order          int
	MaxEvaluations int
}

// Fit returns d(s) with |d(jω)| close to mags in the log-magnitude least
// squares sense.
func (f Fitter) Fit(omega, mags []float64) (lti.StateSpace, error) {
	if len(omega) == 0 || len(omega) != len(mags) {
		return lti.StateSpace{}, fmt.Errorf("%w: %d frequencies, %d magnitudes", lti.ErrDimensionMismatch, len(omega), len(mags))
	}
	logMag := make([]float64, len(mags))
	for i, m := range mags {
		if !(m > 0) || math.IsInf(m, 0) {
			return lti.StateSpace{}, fmt.Errorf("%w: scaling magnitude %g at %g rad/s", lti.ErrMalformedSystem, m, omega[i])
		}
		logMag[i] = math.Log(m)
	}

	switch f.Order {
	case 0:
		return lti.Gain(math.Exp(mean(logMag))), nil
	case 1:
		return f.fitFirstOrder(omega, logMag)
	default:
		return lti.StateSpace{}, fmt.Errorf("%w: scaling order %d is not supported", lti.ErrMalformedSystem, f.Order)
	}
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// firstOrderCost returns the squared log-magnitude error of (s+a)/(s+b)
// with the gain k chosen optimally, and that gain.
func firstOrderCost(omega, logMag []float64, la, lb float64) (cost, logK float64) {
	a, b := math.Exp(la), math.Exp(lb)
	shape := make([]float64, len(omega))
	for i, w := range omega {
		s := complex(0, w)
		shape[i] = math.Log(cmplx.Abs((s + complex(a, 0)) / (s + complex(b, 0))))
	}
	for i := range omega {
		logK += logMag[i] - shape[i]
	}
	logK /= float64(len(omega))
	for i := range omega {
		r := logK + shape[i] - logMag[i]
		cost += r * r
	}
	return cost, logK
}

// fitFirstOrder seeds Nelder-Mead from the best point of a coarse grid over
// the corner frequencies.
func (f Fitter) fitFirstOrder(omega, logMag []float64) (lti.StateSpace, error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range omega {
		if w > 0 {
			lo, hi = math.Min(lo, w), math.Max(hi, w)
		}
	}
	if math.IsInf(lo, 1) {
		lo, hi = 1, 1
	}
	grid := []float64{}
	for v := math.Log(lo); v <= math.Log(hi)+1e-9; v += math.Max((math.Log(hi)-math.Log(lo))/8, 0.5) {
		grid = append(grid, v)
	}

	best := math.Inf(1)
	x0 := []float64{0, 0}
	for _, la := range grid {
		for _, lb := range grid {
			if c, _ := firstOrderCost(omega, logMag, la, lb); c < best {
				best, x0 = c, []float64{la, lb}
			}
		}
	}

	obj := func(x []float64) float64 {
		if math.Abs(x[0]) > 40 || math.Abs(x[1]) > 40 {
			return math.Inf(1)
		}
		c, _ := firstOrderCost(omega, logMag, x[0], x[1])
		return c
	}
	evals := f.MaxEvaluations
	if evals == 0 {
		evals = 500
	}
	res, err := optimize.Minimize(optimize.Problem{Func: obj}, x0, &optimize.Settings{FuncEvaluations: evals}, &optimize.NelderMead{})
	if err == nil && res != nil && res.F < best {
		x0 = res.X
	}

	_, logK := firstOrderCost(omega, logMag, x0[0], x0[1])
	k, a, b := math.Exp(logK), math.Exp(x0[0]), math.Exp(x0[1])
	tf, err := lti.FromCoefficients([]float64{k, k * a}, []float64{1, b}, 1)
	if err != nil {
		return lti.StateSpace{}, err
	}
	return tf.Realize()
}
