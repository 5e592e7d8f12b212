package linalg

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Embed returns the real 2r×2c matrix [[Re, -Im], [Im, Re]] of the row-major
// complex r×c matrix vals. Its singular values are those of the complex
// matrix, each repeated twice, and it has the same spectral radius.
func Embed(vals []complex128, r, c int) *mat.Dense {
	e := mat.NewDense(2*r, 2*c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := vals[i*c+j]
			e.Set(i, j, real(v))
			e.Set(i, j+c, -imag(v))
			e.Set(i+r, j, imag(v))
			e.Set(i+r, j+c, real(v))
		}
	}
	return e
}

// ComplexSigma returns the singular values, in descending order, of the
// row-major complex r×c matrix vals.
func ComplexSigma(vals []complex128, r, c int) []float64 {
	k := min(r, c)
	if k == 0 {
		return nil
	}
	var svd mat.SVD
	if !svd.Factorize(Embed(vals, r, c), mat.SVDNone) {
		out := make([]float64, k)
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	all := svd.Values(nil)
	out := make([]float64, k)
	for i := range out {
		out[i] = all[2*i]
	}
	return out
}

// ComplexSigmaMax returns the largest singular value of vals.
func ComplexSigmaMax(vals []complex128, r, c int) float64 {
	s := ComplexSigma(vals, r, c)
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

// ComplexSpectralRadius returns max |λ| over the eigenvalues of the square
// complex n×n matrix vals.
func ComplexSpectralRadius(vals []complex128, n int) float64 {
	if n == 0 {
		return 0
	}
	var eig mat.Eigen
	if !eig.Factorize(Embed(vals, n, n), mat.EigenNone) {
		return math.NaN()
	}
	rho := 0.0
	for _, l := range eig.Values(nil) {
		rho = math.Max(rho, cmplx.Abs(l))
	}
	return rho
}

// SpectralRadius returns max |λ| for a real square matrix.
func SpectralRadius(x mat.Matrix) float64 {
	if IsNil(x) {
		return 0
	}
	var eig mat.Eigen
	if !eig.Factorize(x, mat.EigenNone) {
		return math.NaN()
	}
	rho := 0.0
	for _, l := range eig.Values(nil) {
		rho = math.Max(rho, cmplx.Abs(l))
	}
	return rho
}

// MinSymEigen returns the smallest eigenvalue of the symmetric part of x.
func MinSymEigen(x *mat.Dense) float64 {
	if x == nil {
		return 0
	}
	n, _ := x.Dims()
	s := Symmetrize(x)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, s.At(i, j))
		}
	}
	var es mat.EigenSym
	if !es.Factorize(sym, false) {
		return math.NaN()
	}
	vals := es.Values(nil)
	m := math.Inf(1)
	for _, v := range vals {
		m = math.Min(m, v)
	}
	return m
}

// SymInvSqrt returns s^{-1/2} for symmetric positive definite s, failing with
// ErrSingular when the smallest eigenvalue is below tol times the largest.
func SymInvSqrt(s *mat.Dense, tol float64) (*mat.Dense, error) {
	n, _ := s.Dims()
	sym := mat.NewSymDense(n, nil)
	ss := Symmetrize(s)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, ss.At(i, j))
		}
	}
	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, ErrSingular
	}
	vals := es.Values(nil)
	maxV := 0.0
	for _, v := range vals {
		maxV = math.Max(maxV, v)
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	diag := mat.NewDense(n, n, nil)
	for i, v := range vals {
		if v <= tol*maxV || v <= 0 {
			return nil, ErrSingular
		}
		diag.Set(i, i, 1/math.Sqrt(v))
	}
	var tmp, out mat.Dense
	tmp.Mul(&vecs, diag)
	out.Mul(&tmp, vecs.T())
	return &out, nil
}
