package sim

import "gonum.org/v1/gonum/mat"

// linear is ẋ = Ax + Bu. A nil matrix is a zero block.
type linear struct {
	a, b *mat.Dense
	n, m int
}

func (l *linear) derive(dst, x, u []float64) {
	for i := range dst {
		dst[i] = 0
	}
	if l.n == 0 {
		return
	}
	dv := mat.NewVecDense(l.n, dst)
	if l.a != nil {
		dv.MulVec(l.a, mat.NewVecDense(l.n, x))
	}
	if l.b != nil && l.m > 0 {
		var bu mat.VecDense
		bu.MulVec(l.b, mat.NewVecDense(l.m, u))
		dv.AddVec(dv, &bu)
	}
}

// RK4 is a classical fourth-order Runge-Kutta stepper with reusable scratch.
type RK4 struct {
	sys            *linear
	dt             float64
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func newRK4(sys *linear, dt float64) (Integrator, error) {
	n := sys.n
	return &RK4{
		sys:     sys,
		dt:      dt,
		k1:      make([]float64, n),
		k2:      make([]float64, n),
		k3:      make([]float64, n),
		k4:      make([]float64, n),
		scratch: make([]float64, n),
	}, nil
}

func (r *RK4) Step(x State, u0, uh, u1 []float64) State {
	n, dt := len(x), r.dt

	r.sys.derive(r.k1, x, u0)
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	r.sys.derive(r.k2, r.scratch, uh)
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	r.sys.derive(r.k3, r.scratch, uh)
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	r.sys.derive(r.k4, r.scratch, u1)

	out := make(State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		out[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return out
}
