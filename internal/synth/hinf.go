package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"gonum.org/v1/gonum/mat"
)

var (
	errNotPSD    = errors.New("riccati solution is not positive semidefinite")
	errCoupling  = errors.New("spectral radius condition rho(XY) < gamma^2 fails")
	errUnstable  = errors.New("closed loop is not stable")
	errZNotValid = errors.New("I - XY/gamma^2 is singular")
)

// Riccati is the reference engine: bisection on γ, testing each value with
// the two H∞ Riccati equations and returning the central controller.
//
// It requires D11 = 0, D12 of full column rank and D21 of full row rank. A
// nonzero D22 is handled by a loop shift.
type Riccati struct {
	// PSDTol is the relative tolerance on negative eigenvalues of X∞ and Y∞.
	PSDTol       float64
	// StabilityTol is the relative tolerance on closed-loop pole real parts.
	StabilityTol float64
	Logger       *slog.Logger
}

// NewRiccati returns a Riccati engine with default tolerances.
func NewRiccati() *Riccati {
	return &Riccati{PSDTol: 1e-8, StabilityTol: 1e-10}
}

// parts is a generalized plant split into its exogenous and control
// channels, after normalization of D12 and D21.
type parts struct {
	n, m1, m2, p1, p2 int
	a, b1, b2, c1, c2 *mat.Dense
	d12, d21, d22     *mat.Dense
	su, sy            *mat.Dense
}

func split(p lti.StateSpace, nMeas, nCtrl int) (parts, error) {
	n := p.States()
	m2, p2 := nCtrl, nMeas
	m1, p1 := p.Inputs()-m2, p.Outputs()-p2
	if n == 0 || m1 <= 0 || p1 <= 0 || m2 <= 0 || p2 <= 0 {
		return parts{}, fmt.Errorf("%w: plant %dx%d with %d states cannot carry %d measurements and %d controls",
			lti.ErrDimensionMismatch, p.Outputs(), p.Inputs(), n, nMeas, nCtrl)
	}
	b, c, d := p.B(), p.C(), p.D()
	pt := parts{
		n: n, m1: m1, m2: m2, p1: p1, p2: p2,
		a:   p.A(),
		b1:  linalg.Slice(b, 0, n, 0, m1),
		b2:  linalg.Slice(b, 0, n, m1, m1+m2),
		c1:  linalg.Slice(c, 0, p1, 0, n),
		c2:  linalg.Slice(c, p1, p1+p2, 0, n),
		d12: linalg.Slice(d, 0, p1, m1, m1+m2),
		d21: linalg.Slice(d, p1, p1+p2, 0, m1),
		d22: linalg.Slice(d, p1, p1+p2, m1, m1+m2),
	}
	d11 := linalg.Slice(d, 0, p1, 0, m1)
	if linalg.MaxAbs(d11) > 1e-12*math.Max(1, linalg.MaxAbs(d)) {
		return parts{}, fmt.Errorf("%w: D11 must be zero", lti.ErrMalformedSystem)
	}

	var err error
	pt.su, err = linalg.SymInvSqrt(linalg.Mul(pt.d12.T(), pt.d12, m2, m2), 1e-12)
	if err != nil {
		return parts{}, fmt.Errorf("%w: D12 does not have full column rank", lti.ErrMalformedSystem)
	}
	pt.sy, err = linalg.SymInvSqrt(linalg.Mul(pt.d21, pt.d21.T(), p2, p2), 1e-12)
	if err != nil {
		return parts{}, fmt.Errorf("%w: D21 does not have full row rank", lti.ErrMalformedSystem)
	}
	pt.b2 = linalg.Mul(pt.b2, pt.su, n, m2)
	pt.d12 = linalg.Mul(pt.d12, pt.su, p1, m2)
	pt.c2 = linalg.Mul(pt.sy, pt.c2, p2, n)
	pt.d21 = linalg.Mul(pt.sy, pt.d21, p2, m1)
	pt.d22 = linalg.Mul(linalg.Mul(pt.sy, pt.d22, p2, m2), pt.su, p2, m2)
	return pt, nil
}

// central returns the central controller for the normalized plant with
// D22 = 0 at level gamma, or the reason gamma is infeasible.
func (r *Riccati) central(pt parts, gamma float64) (lti.StateSpace, error) {
	n, m1, m2, p1, p2 := pt.n, pt.m1, pt.m2, pt.p1, pt.p2
	g2 := 1 / (gamma * gamma)
	mul := linalg.Mul

	// X∞
	ax := linalg.Sub(pt.a, mul(pt.b2, mul(pt.d12.T(), pt.c1, m2, n), n, n), n, n)
	rx := linalg.Sub(
		linalg.Scale(g2, mul(pt.b1, pt.b1.T(), n, n)),
		mul(pt.b2, pt.b2.T(), n, n), n, n)
	qx := mul(pt.c1.T(), mul(linalg.IMinus(mul(pt.d12, pt.d12.T(), p1, p1), p1), pt.c1, p1, n), n, n)
	x, err := SolveRiccati(ax, rx, qx)
	if err != nil {
		return lti.StateSpace{}, fmt.Errorf("X: %w", err)
	}

	// Y∞
	ay := linalg.Sub(pt.a, mul(pt.b1, mul(pt.d21.T(), pt.c2, m1, n), n, n), n, n)
	ry := linalg.Sub(
		linalg.Scale(g2, mul(pt.c1.T(), pt.c1, n, n)),
		mul(pt.c2.T(), pt.c2, n, n), n, n)
	qy := mul(pt.b1, mul(linalg.IMinus(mul(pt.d21.T(), pt.d21, m1, m1), m1), pt.b1.T(), m1, n), n, n)
	y, err := SolveRiccati(linalg.T(ay), ry, qy)
	if err != nil {
		return lti.StateSpace{}, fmt.Errorf("Y: %w", err)
	}

	for _, s := range []*mat.Dense{x, y} {
		if linalg.MinSymEigen(s) < -r.PSDTol*math.Max(1, linalg.MaxAbs(s)) {
			return lti.StateSpace{}, errNotPSD
		}
	}
	yx := mul(y, x, n, n)
	if rho := linalg.SpectralRadius(yx); math.IsNaN(rho) || rho >= gamma*gamma {
		return lti.StateSpace{}, errCoupling
	}

	z, err := linalg.Inverse(linalg.IMinus(linalg.Scale(g2, yx), n), linalg.MaxCond)
	if err != nil {
		return lti.StateSpace{}, errZNotValid
	}
	f := linalg.Scale(-1, linalg.Add(mul(pt.d12.T(), pt.c1, m2, n), mul(pt.b2.T(), x, m2, n), m2, n))
	l := linalg.Scale(-1, linalg.Add(mul(pt.b1, pt.d21.T(), n, p2), mul(y, pt.c2.T(), n, p2), n, p2))
	zl := mul(z, l, n, p2)

	b1x := mul(pt.b1.T(), x, m1, n)
	ak := linalg.Add(
		linalg.Add(pt.a, linalg.Scale(g2, mul(pt.b1, b1x, n, n)), n, n),
		linalg.Add(
			mul(pt.b2, f, n, n),
			mul(zl, linalg.Add(pt.c2, linalg.Scale(g2, mul(pt.d21, b1x, p2, n)), p2, n), n, n),
			n, n),
		n, n)
	bk := linalg.Scale(-1, zl)
	return lti.New(ak, bk, f, linalg.Zeros(m2, p2))
}

// controller undoes the loop shift and the normalization of a central
// controller designed with D22 = 0.
func controller(pt parts, k lti.StateSpace) (lti.StateSpace, error) {
	if linalg.MaxAbs(pt.d22) > 0 {
		var err error
		k, err = lti.Feedback(k, lti.StaticGain(pt.d22), -1)
		if err != nil {
			return lti.StateSpace{}, err
		}
	}
	k, err := lti.Series(lti.StaticGain(pt.sy), k)
	if err != nil {
		return lti.StateSpace{}, err
	}
	return lti.Series(k, lti.StaticGain(pt.su))
}

func (r *Riccati) stable(s lti.StateSpace) bool {
	poles := lti.Poles(s)
	if len(poles) != s.States() {
		return false
	}
	tol := r.StabilityTol * math.Max(1, linalg.MaxAbs(s.A()))
	for _, p := range poles {
		if cmplx.IsNaN(p) || real(p) >= tol {
			return false
		}
	}
	return true
}

// attempt tests one γ and, when feasible, returns the controller and closed
// loop for the original plant.
func (r *Riccati) attempt(plant lti.StateSpace, pt parts, nMeas, nCtrl int, gamma float64) (Result, error) {
	kc, err := r.central(pt, gamma)
	if err != nil {
		return Result{}, err
	}
	k, err := controller(pt, kc)
	if err != nil {
		return Result{}, err
	}
	cl, err := lti.LowerLFT(plant, k, nMeas, nCtrl)
	if err != nil {
		return Result{}, err
	}
	if !r.stable(cl) {
		return Result{}, errUnstable
	}
	return Result{Controller: k, ClosedLoop: cl, Gamma: gamma}, nil
}

// Synthesize bisects the bracket. The upper end is tested first; if it is
// infeasible the search fails immediately. Otherwise the interval shrinks
// until its width is within the tolerance and the best γ found is returned.
func (r *Riccati) Synthesize(ctx context.Context, plant lti.StateSpace, nMeas, nCtrl int, br Bracket) (Result, error) {
	if err := br.Validate(); err != nil {
		return Result{}, err
	}
	pt, err := split(plant, nMeas, nCtrl)
	if err != nil {
		return Result{}, err
	}

	var steps []Step
	try := func(gamma float64) (Result, bool) {
		res, err := r.attempt(plant, pt, nMeas, nCtrl, gamma)
		step := Step{Gamma: gamma, Feasible: err == nil}
		if err != nil {
			step.Reason = err.Error()
		}
		steps = append(steps, step)
		if r.Logger != nil {
			r.Logger.Debug("gamma step", "gamma", gamma, "feasible", step.Feasible, "reason", step.Reason)
		}
		return res, err == nil
	}
	fail := func(err error) (Result, error) {
		return Result{Iterations: steps}, &BracketError{Bracket: br, Iterations: len(steps), Wrapped: err}
	}

	best, ok := try(br.High)
	if !ok {
		return fail(fmt.Errorf("%w: upper bound %g is infeasible: %s", ErrSynthesisInfeasible, br.High, steps[0].Reason))
	}
	lo, hi := br.Low, br.High
	for hi-lo > br.Tolerance {
		if len(steps) >= br.maxIter() {
			return fail(fmt.Errorf("%w: iteration cap %d reached with gamma in [%g, %g]",
				ErrSynthesisInfeasible, br.maxIter(), lo, hi))
		}
		if err := ctx.Err(); err != nil {
			return Result{Iterations: steps}, err
		}
		mid := (lo + hi) / 2
		if res, ok := try(mid); ok {
			best, hi = res, mid
		} else {
			lo = mid
		}
	}
	best.Iterations = steps
	return best, nil
}
