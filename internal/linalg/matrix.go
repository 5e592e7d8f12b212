// Package linalg collects small helpers on top of gonum/mat that the rest of
// the module relies on.
//
// gonum refuses to allocate matrices with a zero dimension, but state-space
// algebra routinely produces them (a pure gain has no states). Throughout this
// package a nil *mat.Dense stands for an empty or all-zero block whose shape is
// carried by the caller.
package linalg

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a square matrix cannot be inverted to working
// precision.
var ErrSingular = errors.New("linalg: matrix is singular to working precision")

// MaxCond is the default condition number above which a matrix is treated as
// singular.
const MaxCond = 1e14

// Zeros returns an r×c zero matrix, or nil when either dimension is zero.
func Zeros(r, c int) *mat.Dense {
	if r <= 0 || c <= 0 {
		return nil
	}
	return mat.NewDense(r, c, nil)
}

// Eye returns the n×n identity.
func Eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Clone copies x. A nil x stays nil.
func Clone(x mat.Matrix) *mat.Dense {
	if IsNil(x) {
		return nil
	}
	return mat.DenseCopyOf(x)
}

// Mul returns the r×c product x*y; nil operands are zero blocks.
func Mul(x, y mat.Matrix, r, c int) *mat.Dense {
	out := Zeros(r, c)
	if out == nil || IsNil(x) || IsNil(y) {
		return out
	}
	out.Mul(x, y)
	return out
}

// Add returns the r×c sum x+y; nil operands are zero blocks.
func Add(x, y mat.Matrix, r, c int) *mat.Dense {
	out := Zeros(r, c)
	if out == nil {
		return nil
	}
	if !IsNil(x) {
		out.Add(out, x)
	}
	if !IsNil(y) {
		out.Add(out, y)
	}
	return out
}

// Sub returns the r×c difference x-y; nil operands are zero blocks.
func Sub(x, y mat.Matrix, r, c int) *mat.Dense {
	out := Zeros(r, c)
	if out == nil {
		return nil
	}
	if !IsNil(x) {
		out.Add(out, x)
	}
	if !IsNil(y) {
		out.Sub(out, y)
	}
	return out
}

// Scale returns k*x.
func Scale(k float64, x mat.Matrix) *mat.Dense {
	if IsNil(x) {
		return nil
	}
	var out mat.Dense
	out.Scale(k, x)
	return &out
}

// T returns a transposed copy of x.
func T(x mat.Matrix) *mat.Dense {
	if IsNil(x) {
		return nil
	}
	return mat.DenseCopyOf(x.T())
}

// Blocks assembles a block matrix from parts. rows and cols hold the block
// heights and widths; nil parts are zero blocks.
func Blocks(parts [][]mat.Matrix, rows, cols []int) *mat.Dense {
	out := Zeros(sum(rows), sum(cols))
	if out == nil {
		return nil
	}
	r0 := 0
	for i, rs := range rows {
		c0 := 0
		for j, cs := range cols {
			if rs > 0 && cs > 0 && j < len(parts[i]) && !IsNil(parts[i][j]) {
				out.Slice(r0, r0+rs, c0, c0+cs).(*mat.Dense).Copy(parts[i][j])
			}
			c0 += cs
		}
		r0 += rs
	}
	return out
}

// Slice copies x[r0:r1, c0:c1].
func Slice(x *mat.Dense, r0, r1, c0, c1 int) *mat.Dense {
	if x == nil || r1 <= r0 || c1 <= c0 {
		return nil
	}
	return mat.DenseCopyOf(x.Slice(r0, r1, c0, c1))
}

// Solve returns X with a*X = b for square a, failing with ErrSingular when the
// condition number of a exceeds maxCond.
func Solve(a, b mat.Matrix, maxCond float64) (*mat.Dense, error) {
	if IsNil(a) {
		return nil, nil
	}
	n, _ := a.Dims()
	_, k := b.Dims()
	var lu mat.LU
	lu.Factorize(a)
	if c := lu.Cond(); math.IsInf(c, 1) || math.IsNaN(c) || c > maxCond {
		return nil, ErrSingular
	}
	x := mat.NewDense(n, k, nil)
	if err := lu.SolveTo(x, false, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	if HasNaNOrInf(x) {
		return nil, ErrSingular
	}
	return x, nil
}

// Inverse returns a⁻¹ for square a.
func Inverse(a mat.Matrix, maxCond float64) (*mat.Dense, error) {
	if IsNil(a) {
		return nil, nil
	}
	n, _ := a.Dims()
	return Solve(a, Eye(n), maxCond)
}

// IMinus returns I - x for square x of order n.
func IMinus(x mat.Matrix, n int) *mat.Dense {
	return Sub(Eye(n), x, n, n)
}

// Symmetrize returns (x + xᵀ)/2.
func Symmetrize(x *mat.Dense) *mat.Dense {
	if x == nil {
		return nil
	}
	var s mat.Dense
	s.Add(x, x.T())
	s.Scale(0.5, &s)
	return &s
}

// HasNaNOrInf checks if there are any NaN or Inf entries in the matrix.
func HasNaNOrInf(x mat.Matrix) bool {
	if IsNil(x) {
		return false
	}
	r, c := x.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := x.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// MaxAbs returns the largest absolute entry of x, zero for nil.
func MaxAbs(x mat.Matrix) float64 {
	if IsNil(x) {
		return 0
	}
	r, c := x.Dims()
	m := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m = math.Max(m, math.Abs(x.At(i, j)))
		}
	}
	return m
}

// Norm returns the Frobenius norm of x, zero for nil.
func Norm(x mat.Matrix) float64 {
	if IsNil(x) {
		return 0
	}
	return mat.Norm(x, 2)
}

// FromRows builds a dense matrix from row slices. Empty input yields nil.
func FromRows(rows [][]float64) *mat.Dense {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for _, row := range rows {
		if len(row) != c {
			return nil
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data)
}

// ToRows is the inverse of FromRows.
func ToRows(x mat.Matrix) [][]float64 {
	if IsNil(x) {
		return nil
	}
	r, c := x.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = x.At(i, j)
		}
	}
	return rows
}

func sum(xs []int) int {
	s := 0
	for _, x := range xs {
		s += x
	}
	return s
}

// IsNil reports whether x is absent, including a typed nil *mat.Dense.
func IsNil(x mat.Matrix) bool {
	if x == nil {
		return true
	}
	if d, ok := x.(*mat.Dense); ok && d == nil {
		return true
	}
	return false
}
