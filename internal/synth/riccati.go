package synth

import (
	"fmt"
	"math"

	"github.com/san-kum/loopshape/internal/linalg"
	"gonum.org/v1/gonum/mat"
)

const (
	signMaxIter     = 100
	signTol         = 1e-10
	signStallTol    = 1e-6
	riccatiResidual = 1e-6
)

// SolveRiccati returns the stabilizing solution X of
//
//	AᵀX + XA + XRX + Q = 0
//
// for symmetric R and Q, so that A + RX is stable. It works on the
// Hamiltonian H = [[A, R], [-Q, -Aᵀ]] through the matrix sign function,
// which does not need the eigenvalues of H to be distinct. Eigenvalues of H
// on the imaginary axis make the equation unsolvable and yield ErrRiccati.
func SolveRiccati(a, r, q *mat.Dense) (*mat.Dense, error) {
	n, _ := a.Dims()
	h := linalg.Blocks([][]mat.Matrix{
		{a, r},
		{linalg.Scale(-1, q), linalg.Scale(-1, a.T())},
	}, []int{n, n}, []int{n, n})

	w, err := matrixSign(h)
	if err != nil {
		return nil, err
	}

	// The stable invariant subspace [I; X] is the null space of W + I.
	w11 := linalg.Slice(w, 0, n, 0, n)
	w12 := linalg.Slice(w, 0, n, n, 2*n)
	w21 := linalg.Slice(w, n, 2*n, 0, n)
	w22 := linalg.Slice(w, n, 2*n, n, 2*n)
	id := linalg.Eye(n)
	lhs := linalg.Blocks([][]mat.Matrix{{w12}, {linalg.Add(w22, id, n, n)}}, []int{n, n}, []int{n})
	rhs := linalg.Scale(-1, linalg.Blocks([][]mat.Matrix{{linalg.Add(w11, id, n, n)}, {w21}}, []int{n, n}, []int{n}))

	var x mat.Dense
	if err := x.Solve(lhs, rhs); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, fmt.Errorf("%w: %v", ErrRiccati, err)
		}
	}
	xs := linalg.Symmetrize(&x)
	if linalg.HasNaNOrInf(xs) {
		return nil, fmt.Errorf("%w: solution is not finite", ErrRiccati)
	}
	if res := riccatiResidualNorm(a, r, q, xs); res > riccatiResidual {
		return nil, fmt.Errorf("%w: relative residual %.3g", ErrRiccati, res)
	}
	return xs, nil
}

// riccatiResidualNorm returns ‖AᵀX + XA + XRX + Q‖ relative to the size of
// its terms.
func riccatiResidualNorm(a, r, q, x *mat.Dense) float64 {
	n, _ := a.Dims()
	atx := linalg.Mul(a.T(), x, n, n)
	xa := linalg.Mul(x, a, n, n)
	xrx := linalg.Mul(linalg.Mul(x, r, n, n), x, n, n)
	sum := linalg.Add(linalg.Add(atx, xa, n, n), linalg.Add(xrx, q, n, n), n, n)
	scale := math.Max(1, linalg.Norm(atx)+linalg.Norm(xa)+linalg.Norm(xrx)+linalg.Norm(q))
	return linalg.Norm(sum) / scale
}

// matrixSign computes sign(h) by the scaled Newton iteration
//
//	Z ← (cZ + (cZ)⁻¹) / 2,  c = |det Z|^(-1/N)
//
// switching scaling off once the iterates settle.
func matrixSign(h *mat.Dense) (*mat.Dense, error) {
	nn, _ := h.Dims()
	z := linalg.Clone(h)
	scaling := true
	prev := math.Inf(1)
	for it := 0; it < signMaxIter; it++ {
		c := 1.0
		if scaling {
			var lu mat.LU
			lu.Factorize(z)
			logDet, _ := lu.LogDet()
			if math.IsInf(logDet, 0) || math.IsNaN(logDet) {
				return nil, fmt.Errorf("%w: hamiltonian has an eigenvalue at zero", ErrRiccati)
			}
			c = math.Exp(-logDet / float64(nn))
		}
		zi, err := linalg.Inverse(z, math.Inf(1))
		if err != nil {
			return nil, fmt.Errorf("%w: sign iteration hit a singular iterate", ErrRiccati)
		}
		var next mat.Dense
		next.Scale(c/2, z)
		next.Add(&next, linalg.Scale(0.5/c, zi))
		if linalg.HasNaNOrInf(&next) {
			return nil, fmt.Errorf("%w: sign iteration diverged", ErrRiccati)
		}

		var diff mat.Dense
		diff.Sub(&next, z)
		d := mat.Norm(&diff, 1)
		size := mat.Norm(&next, 1)
		z = &next
		if d <= signTol*size {
			return z, nil
		}
		if d <= signStallTol*size && d >= prev {
			return z, nil
		}
		if d < 1e-2*size {
			scaling = false
		}
		prev = d
	}
	return nil, fmt.Errorf("%w: sign iteration did not converge in %d steps", ErrRiccati, signMaxIter)
}

// LQR returns the optimal state feedback u = -Kx for x' = Ax + Bu with cost
// ∫ xᵀQx + uᵀRu, together with the Riccati solution.
func LQR(a, b, q, r *mat.Dense) (k, x *mat.Dense, err error) {
	n, m := b.Dims()
	ri, err := linalg.Inverse(r, linalg.MaxCond)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: control weight is singular", ErrRiccati)
	}
	g := linalg.Mul(linalg.Mul(b, ri, n, m), b.T(), n, n)
	x, err = SolveRiccati(a, linalg.Scale(-1, g), q)
	if err != nil {
		return nil, nil, err
	}
	k = linalg.Mul(linalg.Mul(ri, b.T(), m, n), x, m, n)
	return k, x, nil
}
