package lti

import (
	"fmt"
	"math/cmplx"
	"strings"

	"github.com/san-kum/loopshape/internal/linalg"
	"gonum.org/v1/gonum/mat"
)

// StateSpace is the realization
//
//	x'(t) = A x(t) + B u(t)
//	y(t)  = C x(t) + D u(t)
//
// with n states, m inputs and p outputs. A system with no states is a pure
// gain and carries only D.
type StateSpace struct {
	a, b, c, d *mat.Dense
	n, m, p    int
}

// New builds a system from its matrices, checking that they are conformant.
// A, B and C may be nil for a system without states; D may be nil when B and
// C fix the input and output sizes.
func New(a, b, c, d mat.Matrix) (StateSpace, error) {
	n, m, p := 0, 0, 0
	if linalg.IsNil(a) {
		a = nil
	}
	if linalg.IsNil(b) {
		b = nil
	}
	if linalg.IsNil(c) {
		c = nil
	}
	if linalg.IsNil(d) {
		d = nil
	}
	if a != nil {
		ra, ca := a.Dims()
		if ra != ca {
			return StateSpace{}, fmt.Errorf("%w: A is %dx%d, not square", ErrMalformedSystem, ra, ca)
		}
		n = ra
	}
	if d != nil {
		p, m = d.Dims()
	} else {
		if b == nil || c == nil {
			return StateSpace{}, fmt.Errorf("%w: D is required when B or C is missing", ErrMalformedSystem)
		}
		_, m = b.Dims()
		p, _ = c.Dims()
	}
	if n > 0 {
		if b == nil || c == nil {
			return StateSpace{}, fmt.Errorf("%w: B and C are required when A has %d states", ErrMalformedSystem, n)
		}
		rb, cb := b.Dims()
		if rb != n || cb != m {
			return StateSpace{}, fmt.Errorf("%w: B is %dx%d, want %dx%d", ErrMalformedSystem, rb, cb, n, m)
		}
		rc, cc := c.Dims()
		if rc != p || cc != n {
			return StateSpace{}, fmt.Errorf("%w: C is %dx%d, want %dx%d", ErrMalformedSystem, rc, cc, p, n)
		}
	}
	for name, x := range map[string]mat.Matrix{"A": a, "B": b, "C": c, "D": d} {
		if x != nil && linalg.HasNaNOrInf(x) {
			return StateSpace{}, fmt.Errorf("%w: %s has NaN or Inf entries", ErrMalformedSystem, name)
		}
	}
	if n == 0 {
		return build(nil, nil, nil, linalg.Clone(d), 0, m, p), nil
	}
	return build(linalg.Clone(a), linalg.Clone(b), linalg.Clone(c), linalg.Clone(d), n, m, p), nil
}

// build assembles a system from matrices the caller owns. No copies are made.
func build(a, b, c, d *mat.Dense, n, m, p int) StateSpace {
	if n == 0 {
		a, b, c = nil, nil, nil
	}
	return StateSpace{a: a, b: b, c: c, d: d, n: n, m: m, p: p}
}

// Gain returns the static system y = k u for a scalar k.
func Gain(k float64) StateSpace {
	return build(nil, nil, nil, mat.NewDense(1, 1, []float64{k}), 0, 1, 1)
}

// StaticGain returns the static system y = D u.
func StaticGain(d mat.Matrix) StateSpace {
	p, m := d.Dims()
	return build(nil, nil, nil, linalg.Clone(d), 0, m, p)
}

// Identity returns the static k×k identity system.
func Identity(k int) StateSpace {
	return build(nil, nil, nil, linalg.Eye(k), 0, k, k)
}

// States returns the number of states.
func (s StateSpace) States() int { return s.n }

// Inputs returns the number of inputs.
func (s StateSpace) Inputs() int { return s.m }

// Outputs returns the number of outputs.
func (s StateSpace) Outputs() int { return s.p }

// A returns a copy of the state matrix, nil when the system has no states.
func (s StateSpace) A() *mat.Dense { return linalg.Clone(s.a) }

// B returns a copy of the input matrix, nil when the system has no states.
func (s StateSpace) B() *mat.Dense { return linalg.Clone(s.b) }

// C returns a copy of the output matrix, nil when the system has no states.
func (s StateSpace) C() *mat.Dense { return linalg.Clone(s.c) }

// D returns a copy of the feedthrough matrix. It is never nil for a system
// with inputs and outputs.
func (s StateSpace) D() *mat.Dense {
	if s.d == nil {
		return linalg.Zeros(s.p, s.m)
	}
	return linalg.Clone(s.d)
}

// IsStatic reports whether the system is a pure gain.
func (s StateSpace) IsStatic() bool { return s.n == 0 }

// Eval returns the transfer matrix C(sI-A)⁻¹B + D at the complex point s as
// a row-major Outputs()×Inputs() slice.
func (s StateSpace) Eval(z complex128) ([]complex128, error) {
	out := make([]complex128, s.p*s.m)
	for i := 0; i < s.p; i++ {
		for j := 0; j < s.m; j++ {
			if s.d != nil {
				out[i*s.m+j] = complex(s.d.At(i, j), 0)
			}
		}
	}
	if s.n == 0 {
		return out, nil
	}
	n := s.n
	// (sI - A)(Xr + jXi) = B written as a real 2n system.
	sr, si := real(z), imag(z)
	m := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -s.a.At(i, j)
			if i == j {
				v += sr
			}
			m.Set(i, j, v)
			m.Set(i+n, j+n, v)
		}
		m.Set(i, i+n, -si)
		m.Set(i+n, i, si)
	}
	rhs := linalg.Blocks([][]mat.Matrix{{s.b}, {nil}}, []int{n, n}, []int{s.m})
	x, err := linalg.Solve(m, rhs, linalg.MaxCond)
	if err != nil {
		return nil, fmt.Errorf("%w: sI-A is singular at s=%v", ErrPole, z)
	}
	var gr, gi mat.Dense
	gr.Mul(s.c, x.Slice(0, n, 0, s.m))
	gi.Mul(s.c, x.Slice(n, 2*n, 0, s.m))
	for i := 0; i < s.p; i++ {
		for j := 0; j < s.m; j++ {
			out[i*s.m+j] += complex(gr.At(i, j), gi.At(i, j))
		}
	}
	return out, nil
}

// Poles returns the eigenvalues of A.
func Poles(s StateSpace) []complex128 {
	if s.n == 0 {
		return nil
	}
	var eig mat.Eigen
	if !eig.Factorize(s.a, mat.EigenNone) {
		return nil
	}
	return eig.Values(nil)
}

// IsStable reports whether every pole lies strictly in the open left half
// plane.
func IsStable(s StateSpace) bool {
	poles := Poles(s)
	if s.n > 0 && len(poles) != s.n {
		return false
	}
	for _, p := range poles {
		if real(p) >= 0 || cmplx.IsNaN(p) {
			return false
		}
	}
	return true
}

// Scale multiplies the output of s by k.
func Scale(s StateSpace, k float64) StateSpace {
	return build(linalg.Clone(s.a), linalg.Clone(s.b), linalg.Scale(k, s.c), linalg.Scale(k, s.D()), s.n, s.m, s.p)
}

// Equal reports whether two realizations match entry by entry within tol.
func Equal(x, y StateSpace, tol float64) bool {
	if x.n != y.n || x.m != y.m || x.p != y.p {
		return false
	}
	pairs := [][2]*mat.Dense{{x.a, y.a}, {x.b, y.b}, {x.c, y.c}, {x.D(), y.D()}}
	for _, pr := range pairs {
		if pr[0] == nil || pr[1] == nil {
			if pr[0] != pr[1] {
				return false
			}
			continue
		}
		if !mat.EqualApprox(pr[0], pr[1], tol) {
			return false
		}
	}
	return true
}

func (s StateSpace) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "StateSpace(states=%d, inputs=%d, outputs=%d)\n", s.n, s.m, s.p)
	if s.n > 0 {
		fmt.Fprintf(&b, "A =\n%v\nB =\n%v\nC =\n%v\n",
			mat.Formatted(s.a, mat.Prefix("    "), mat.Squeeze()),
			mat.Formatted(s.b, mat.Prefix("    "), mat.Squeeze()),
			mat.Formatted(s.c, mat.Prefix("    "), mat.Squeeze()))
	}
	if d := s.D(); d != nil {
		fmt.Fprintf(&b, "D =\n%v\n", mat.Formatted(d, mat.Prefix("    "), mat.Squeeze()))
	}
	return b.String()
}
