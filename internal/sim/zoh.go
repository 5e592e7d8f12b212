package sim

import "gonum.org/v1/gonum/mat"

// ZOH steps the exact discretization of ẋ = Ax + Bu with the input held
// at its value at the start of each sample.
type ZOH struct {
	phi, gamma *mat.Dense
	n, m       int
}

// newZOH reads Φ = e^{A dt} and Γ = ∫₀^dt e^{Aτ} dτ B off the exponential
// of [[A, B], [0, 0]]·dt.
func newZOH(sys *linear, dt float64) (Integrator, error) {
	n, m := sys.n, sys.m
	z := &ZOH{n: n, m: m}
	if n == 0 {
		return z, nil
	}
	aug := mat.NewDense(n+m, n+m, nil)
	if sys.a != nil {
		aug.Slice(0, n, 0, n).(*mat.Dense).Scale(dt, sys.a)
	}
	if sys.b != nil && m > 0 {
		aug.Slice(0, n, n, n+m).(*mat.Dense).Scale(dt, sys.b)
	}
	var e mat.Dense
	e.Exp(aug)
	z.phi = mat.DenseCopyOf(e.Slice(0, n, 0, n))
	if m > 0 {
		z.gamma = mat.DenseCopyOf(e.Slice(0, n, n, n+m))
	}
	return z, nil
}

func (z *ZOH) Step(x State, u0, uh, u1 []float64) State {
	out := make(State, z.n)
	if z.n == 0 {
		return out
	}
	ov := mat.NewVecDense(z.n, out)
	ov.MulVec(z.phi, mat.NewVecDense(z.n, x))
	if z.gamma != nil {
		var gu mat.VecDense
		gu.MulVec(z.gamma, mat.NewVecDense(z.m, u0))
		ov.AddVec(ov, &gu)
	}
	return out
}
