package synth

import (
	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"gonum.org/v1/gonum/mat"
)

// StateFeedback returns the H2-optimal full-information gain u = -Kx for
// the control channel of a generalized plant, the limit of the H∞ state
// feedback gain as γ grows. The plant must satisfy the same D12 rank
// condition as Synthesize.
func StateFeedback(plant lti.StateSpace, nMeas, nCtrl int) (*mat.Dense, error) {
	pt, err := split(plant, nMeas, nCtrl)
	if err != nil {
		return nil, err
	}
	n, m2, p1 := pt.n, pt.m2, pt.p1

	// With D12ᵀD12 = I the cross term D12ᵀC1 folds into A and Q.
	cross := linalg.Mul(pt.d12.T(), pt.c1, m2, n)
	a := linalg.Sub(pt.a, linalg.Mul(pt.b2, cross, n, n), n, n)
	proj := linalg.IMinus(linalg.Mul(pt.d12, pt.d12.T(), p1, p1), p1)
	q := linalg.Symmetrize(linalg.Mul(linalg.Mul(pt.c1.T(), proj, n, p1), pt.c1, n, n))

	k, _, err := LQR(a, pt.b2, q, linalg.Eye(m2))
	if err != nil {
		return nil, err
	}
	k = linalg.Add(k, cross, m2, n)
	return linalg.Mul(pt.su, k, m2, n), nil
}
