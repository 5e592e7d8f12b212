package lti

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Transfer is the single-input single-output rational function
//
//	G(s) = Gain * Num(s) / Den(s)
//
// with polynomial coefficients stored highest degree first.
type Transfer struct {
	Num  []float64
	Den  []float64
	Gain float64
}

// FromCoefficients validates and returns a transfer function. Leading zero
// coefficients are stripped; the denominator must keep a nonzero leading
// coefficient.
func FromCoefficients(num, den []float64, gain float64) (Transfer, error) {
	num = trimLeading(num)
	den = trimLeading(den)
	if len(den) == 0 {
		return Transfer{}, fmt.Errorf("%w: denominator is zero", ErrMalformedSystem)
	}
	if len(num) == 0 {
		num = []float64{0}
	}
	return Transfer{
		Num:  append([]float64(nil), num...),
		Den:  append([]float64(nil), den...),
		Gain: gain,
	}, nil
}

func trimLeading(p []float64) []float64 {
	for len(p) > 0 && p[0] == 0 {
		p = p[1:]
	}
	return p
}

// Order returns the degree of the denominator.
func (t Transfer) Order() int { return len(t.Den) - 1 }

// Proper reports whether deg Num <= deg Den.
func (t Transfer) Proper() bool { return len(t.Num) <= len(t.Den) }

// Eval returns G(s). A root of the denominator yields ErrPole.
func (t Transfer) Eval(s complex128) (complex128, error) {
	d := polyval(t.Den, s)
	if d == 0 {
		return cmplx.Inf(), fmt.Errorf("%w: denominator vanishes at s=%v", ErrPole, s)
	}
	return complex(t.Gain, 0) * polyval(t.Num, s) / d, nil
}

func polyval(p []float64, s complex128) complex128 {
	var v complex128
	for _, c := range p {
		v = v*s + complex(c, 0)
	}
	return v
}

// Conv multiplies two polynomials given highest degree first.
func Conv(a, b []float64) []float64 {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// Realize returns the controllable canonical realization of t. The
// feedthrough is the quotient of the polynomial division Num/Den; the strictly
// proper remainder sets C.
func (t Transfer) Realize() (StateSpace, error) {
	if len(t.Den) == 0 || t.Den[0] == 0 {
		return StateSpace{}, fmt.Errorf("%w: leading denominator coefficient is zero", ErrMalformedSystem)
	}
	if !t.Proper() {
		return StateSpace{}, fmt.Errorf("%w: improper transfer function (numerator degree %d > denominator degree %d)",
			ErrMalformedSystem, len(t.Num)-1, len(t.Den)-1)
	}
	n := t.Order()
	lead := t.Den[0]
	a := make([]float64, n+1)
	b := make([]float64, n+1)
	for i, v := range t.Den {
		a[i] = v / lead
	}
	off := n + 1 - len(t.Num)
	for i, v := range t.Num {
		b[off+i] = v / lead
	}

	d := mat.NewDense(1, 1, []float64{t.Gain * b[0]})
	if n == 0 {
		return build(nil, nil, nil, d, 0, 1, 1), nil
	}

	am := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		am.Set(0, j, -a[j+1])
	}
	for i := 1; i < n; i++ {
		am.Set(i, i-1, 1)
	}
	bm := mat.NewDense(n, 1, nil)
	bm.Set(0, 0, 1)
	cm := mat.NewDense(1, n, nil)
	for j := 0; j < n; j++ {
		cm.Set(0, j, t.Gain*(b[j+1]-b[0]*a[j+1]))
	}
	return build(am, bm, cm, d, n, 1, 1), nil
}

func (t Transfer) String() string {
	return fmt.Sprintf("%g * %v / %v", t.Gain, t.Num, t.Den)
}
