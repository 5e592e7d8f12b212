package lti

import (
	"math"

	"github.com/san-kum/loopshape/internal/linalg"
	"gonum.org/v1/gonum/mat"
)

// DefaultMinrealTol is the relative singular-value threshold used by Minreal
// when tol <= 0.
const DefaultMinrealTol = 1e-8

// Minreal removes uncontrollable and then unobservable states from s. The
// controllable subspace is built as an orthonormal block-Krylov basis of
// [B, AB, A²B, ...]; directions whose singular value falls below tol times
// max(1, ‖A‖, ‖B‖) are treated as absent. The observable part is found the
// same way on the dual system. The transfer matrix is unchanged.
func Minreal(s StateSpace, tol float64) StateSpace {
	if tol <= 0 {
		tol = DefaultMinrealTol
	}
	if s.n == 0 {
		return s
	}
	c := reduceControllable(s, tol)
	if c.n == 0 {
		return c
	}
	o := reduceControllable(dual(c), tol)
	return dual(o)
}

func dual(s StateSpace) StateSpace {
	return build(linalg.T(s.a), linalg.T(s.c), linalg.T(s.b), linalg.T(s.d), s.n, s.p, s.m)
}

func reduceControllable(s StateSpace, tol float64) StateSpace {
	n := s.n
	thresh := tol * math.Max(1, math.Max(linalg.Norm(s.a), linalg.Norm(s.b)))
	q := controllableBasis(s.a, s.b, n, s.m, thresh)
	r := 0
	if q != nil {
		_, r = q.Dims()
	}
	switch r {
	case n:
		return s
	case 0:
		return build(nil, nil, nil, linalg.Clone(s.d), 0, s.m, s.p)
	}
	qt := q.T()
	am := linalg.Mul(qt, linalg.Mul(s.a, q, n, r), r, r)
	bm := linalg.Mul(qt, s.b, r, s.m)
	cm := linalg.Mul(s.c, q, s.p, r)
	return build(am, bm, cm, linalg.Clone(s.d), r, s.m, s.p)
}

// controllableBasis returns an n×r matrix with orthonormal columns spanning
// the controllable subspace of (a, b), or nil when it is trivial.
func controllableBasis(a, b *mat.Dense, n, m int, thresh float64) *mat.Dense {
	if b == nil || m == 0 {
		return nil
	}
	var q *mat.Dense
	r := 0
	w := linalg.Clone(b)
	for r < n {
		_, k := w.Dims()
		if q != nil {
			// Two passes of Gram-Schmidt against the basis found so far.
			for pass := 0; pass < 2; pass++ {
				w = linalg.Sub(w, linalg.Mul(q, linalg.Mul(q.T(), w, r, k), n, k), n, k)
			}
		}
		u := rangeBasis(w, thresh)
		if u == nil {
			break
		}
		_, du := u.Dims()
		if r+du > n {
			du = n - r
			u = linalg.Slice(u, 0, n, 0, du)
		}
		q = linalg.Blocks(blocks{{q, u}}, []int{n}, []int{r, du})
		r += du
		w = linalg.Mul(a, u, n, du)
		if w == nil {
			break
		}
	}
	return q
}

// rangeBasis returns the left singular vectors of w whose singular value
// exceeds thresh.
func rangeBasis(w *mat.Dense, thresh float64) *mat.Dense {
	if w == nil {
		return nil
	}
	var svd mat.SVD
	if !svd.Factorize(w, mat.SVDThin) {
		return nil
	}
	vals := svd.Values(nil)
	k := 0
	for _, v := range vals {
		if v > thresh {
			k++
		}
	}
	if k == 0 {
		return nil
	}
	var u mat.Dense
	svd.UTo(&u)
	r, _ := u.Dims()
	return linalg.Slice(&u, 0, r, 0, k)
}
