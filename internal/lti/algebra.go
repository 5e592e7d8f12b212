package lti

import (
	"fmt"

	"github.com/san-kum/loopshape/internal/linalg"
	"gonum.org/v1/gonum/mat"
)

type blocks = [][]mat.Matrix

// Series connects a and b so that the output of a drives the input of b. The
// states of a come first in the result.
func Series(a, b StateSpace) (StateSpace, error) {
	if a.p != b.m {
		return StateSpace{}, fmt.Errorf("%w: series: %d outputs feed %d inputs", ErrDimensionMismatch, a.p, b.m)
	}
	na, nb := a.n, b.n
	n := na + nb
	ns := []int{na, nb}

	am := linalg.Blocks(blocks{
		{a.a, nil},
		{linalg.Mul(b.b, a.c, nb, na), b.a},
	}, ns, ns)
	bm := linalg.Blocks(blocks{{a.b}, {linalg.Mul(b.b, a.d, nb, a.m)}}, ns, []int{a.m})
	cm := linalg.Blocks(blocks{{linalg.Mul(b.d, a.c, b.p, na), b.c}}, []int{b.p}, ns)
	dm := linalg.Mul(b.d, a.d, b.p, a.m)
	return build(am, bm, cm, dm, n, a.m, b.p), nil
}

// Parallel returns the system whose output is the sum of the outputs of a and
// b driven by a shared input.
func Parallel(a, b StateSpace) (StateSpace, error) {
	if a.m != b.m || a.p != b.p {
		return StateSpace{}, fmt.Errorf("%w: parallel: %dx%d and %dx%d", ErrDimensionMismatch, a.p, a.m, b.p, b.m)
	}
	ns := []int{a.n, b.n}
	am := linalg.Blocks(blocks{{a.a, nil}, {nil, b.a}}, ns, ns)
	bm := linalg.Blocks(blocks{{a.b}, {b.b}}, ns, []int{a.m})
	cm := linalg.Blocks(blocks{{a.c, b.c}}, []int{a.p}, ns)
	dm := linalg.Add(a.d, b.d, a.p, a.m)
	return build(am, bm, cm, dm, a.n+b.n, a.m, a.p), nil
}

// Feedback closes the loop y = a(u + sign*b(y)). Use sign -1 for negative
// feedback. The algebraic loop through the feedthroughs must be well posed,
// otherwise ErrSingularLoop is returned.
func Feedback(a, b StateSpace, sign float64) (StateSpace, error) {
	if b.m != a.p || b.p != a.m {
		return StateSpace{}, fmt.Errorf("%w: feedback: forward path %dx%d, return path %dx%d",
			ErrDimensionMismatch, a.p, a.m, b.p, b.m)
	}
	na, nb := a.n, b.n
	n := na + nb
	ns := []int{na, nb}
	ma, pa := a.m, a.p

	loop := linalg.Scale(sign, linalg.Mul(a.d, b.d, pa, pa))
	e, err := linalg.Inverse(linalg.IMinus(loop, pa), linalg.MaxCond)
	if err != nil {
		return StateSpace{}, fmt.Errorf("%w: feedback: I - sign*Da*Db", ErrSingularLoop)
	}

	// Output map y = Cy x + Dy u.
	eda := linalg.Mul(e, a.d, pa, ma)
	cy := linalg.Blocks(blocks{{
		linalg.Mul(e, a.c, pa, na),
		linalg.Scale(sign, linalg.Mul(eda, b.c, pa, nb)),
	}}, []int{pa}, ns)
	dy := eda

	// Error signal e = Ce x + De u entering a.
	ce := linalg.Add(
		linalg.Blocks(blocks{{nil, linalg.Scale(sign, b.c)}}, []int{ma}, ns),
		linalg.Scale(sign, linalg.Mul(b.d, cy, ma, n)),
		ma, n)
	de := linalg.Add(linalg.Eye(ma), linalg.Scale(sign, linalg.Mul(b.d, dy, ma, ma)), ma, ma)

	am := linalg.Add(
		linalg.Blocks(blocks{{a.a, nil}, {nil, b.a}}, ns, ns),
		linalg.Blocks(blocks{{linalg.Mul(a.b, ce, na, n)}, {linalg.Mul(b.b, cy, nb, n)}}, ns, []int{n}),
		n, n)
	bm := linalg.Blocks(blocks{{linalg.Mul(a.b, de, na, ma)}, {linalg.Mul(b.b, dy, nb, ma)}}, ns, []int{ma})
	return build(am, bm, cy, dy, n, ma, pa), nil
}

// BlockDiagonal stacks systems so that input and output i of the result belong
// to systems[i] in order. States are concatenated in the same order.
func BlockDiagonal(systems ...StateSpace) (StateSpace, error) {
	if len(systems) == 0 {
		return StateSpace{}, fmt.Errorf("%w: block diagonal of no systems", ErrMalformedSystem)
	}
	k := len(systems)
	ns, ms, ps := make([]int, k), make([]int, k), make([]int, k)
	ab, bb, cb, db := make(blocks, k), make(blocks, k), make(blocks, k), make(blocks, k)
	n, m, p := 0, 0, 0
	for i, s := range systems {
		ns[i], ms[i], ps[i] = s.n, s.m, s.p
		n += s.n
		m += s.m
		p += s.p
		ab[i], bb[i], cb[i], db[i] = make([]mat.Matrix, k), make([]mat.Matrix, k), make([]mat.Matrix, k), make([]mat.Matrix, k)
		ab[i][i], bb[i][i], cb[i][i], db[i][i] = s.a, s.b, s.c, s.d
	}
	return build(
		linalg.Blocks(ab, ns, ns),
		linalg.Blocks(bb, ns, ms),
		linalg.Blocks(cb, ps, ns),
		linalg.Blocks(db, ps, ms),
		n, m, p), nil
}

// LowerLFT closes the generalized plant p with controller k. The last nMeas
// outputs of p are measurements fed to k; the last nCtrl inputs of p are
// driven by k. The result maps the remaining inputs to the remaining outputs,
// with the states of p before those of k.
func LowerLFT(p, k StateSpace, nMeas, nCtrl int) (StateSpace, error) {
	if nMeas <= 0 || nCtrl <= 0 || nMeas > p.p || nCtrl > p.m {
		return StateSpace{}, fmt.Errorf("%w: lft: %d measurements and %d controls on a %dx%d plant",
			ErrDimensionMismatch, nMeas, nCtrl, p.p, p.m)
	}
	if k.m != nMeas || k.p != nCtrl {
		return StateSpace{}, fmt.Errorf("%w: lft: controller is %dx%d, want %dx%d",
			ErrDimensionMismatch, k.p, k.m, nCtrl, nMeas)
	}
	np, nk := p.n, k.n
	n := np + nk
	ns := []int{np, nk}
	m1, m2 := p.m-nCtrl, nCtrl
	p1, p2 := p.p-nMeas, nMeas

	b1 := linalg.Slice(p.b, 0, np, 0, m1)
	b2 := linalg.Slice(p.b, 0, np, m1, p.m)
	c1 := linalg.Slice(p.c, 0, p1, 0, np)
	c2 := linalg.Slice(p.c, p1, p.p, 0, np)
	d11 := linalg.Slice(p.d, 0, p1, 0, m1)
	d12 := linalg.Slice(p.d, 0, p1, m1, p.m)
	d21 := linalg.Slice(p.d, p1, p.p, 0, m1)
	d22 := linalg.Slice(p.d, p1, p.p, m1, p.m)

	f, err := linalg.Inverse(linalg.IMinus(linalg.Mul(k.d, d22, m2, m2), m2), linalg.MaxCond)
	if err != nil {
		return StateSpace{}, fmt.Errorf("%w: lft: I - Dk*D22", ErrSingularLoop)
	}

	// Control signal u = Cu x + Du w.
	fdk := linalg.Mul(f, k.d, m2, p2)
	cu := linalg.Blocks(blocks{{linalg.Mul(fdk, c2, m2, np), linalg.Mul(f, k.c, m2, nk)}}, []int{m2}, ns)
	du := linalg.Mul(fdk, d21, m2, m1)

	// Measurement y = Cy x + Dy w.
	cy := linalg.Add(linalg.Blocks(blocks{{c2, nil}}, []int{p2}, ns), linalg.Mul(d22, cu, p2, n), p2, n)
	dy := linalg.Add(d21, linalg.Mul(d22, du, p2, m1), p2, m1)

	am := linalg.Add(
		linalg.Blocks(blocks{{p.a, nil}, {nil, k.a}}, ns, ns),
		linalg.Blocks(blocks{{linalg.Mul(b2, cu, np, n)}, {linalg.Mul(k.b, cy, nk, n)}}, ns, []int{n}),
		n, n)
	bm := linalg.Blocks(blocks{
		{linalg.Add(b1, linalg.Mul(b2, du, np, m1), np, m1)},
		{linalg.Mul(k.b, dy, nk, m1)},
	}, ns, []int{m1})
	cm := linalg.Add(linalg.Blocks(blocks{{c1, nil}}, []int{p1}, ns), linalg.Mul(d12, cu, p1, n), p1, n)
	dm := linalg.Add(d11, linalg.Mul(d12, du, p1, m1), p1, m1)
	return build(am, bm, cm, dm, n, m1, p1), nil
}

// Inverse returns the system inverse of s. s must be square with an
// invertible feedthrough.
func Inverse(s StateSpace) (StateSpace, error) {
	if s.m != s.p {
		return StateSpace{}, fmt.Errorf("%w: inverse of a %dx%d system", ErrDimensionMismatch, s.p, s.m)
	}
	di, err := linalg.Inverse(s.D(), linalg.MaxCond)
	if err != nil {
		return StateSpace{}, fmt.Errorf("%w: inverse: feedthrough is singular", ErrMalformedSystem)
	}
	if s.n == 0 {
		return build(nil, nil, nil, di, 0, s.m, s.p), nil
	}
	bdi := linalg.Mul(s.b, di, s.n, s.m)
	am := linalg.Sub(s.a, linalg.Mul(bdi, s.c, s.n, s.n), s.n, s.n)
	cm := linalg.Scale(-1, linalg.Mul(di, s.c, s.m, s.n))
	return build(am, bdi, cm, di, s.n, s.m, s.p), nil
}
