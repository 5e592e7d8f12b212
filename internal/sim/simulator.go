package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/loopshape/internal/lti"
	"gonum.org/v1/gonum/mat"
)

// Simulator integrates a continuous-time system driven by a Signal.
type Simulator struct {
	lin     *linear
	c, d    *mat.Dense
	p       int
	metrics []Metric
}

func New(sys lti.StateSpace) *Simulator {
	return &Simulator{
		lin: &linear{a: sys.A(), b: sys.B(), n: sys.States(), m: sys.Inputs()},
		c:   sys.C(),
		d:   sys.D(),
		p:   sys.Outputs(),
	}
}

func (s *Simulator) AddMetric(m Metric) { s.metrics = append(s.metrics, m) }

// Run samples y = Cx + Du every cfg.Dt from t=0 to cfg.Duration. A nil x0
// starts at rest.
func (s *Simulator) Run(ctx context.Context, u Signal, x0 State, cfg Config) (*Result, error) {
	if err := s.validate(u, x0, cfg); err != nil {
		return nil, err
	}
	method := cfg.Method
	if method == "" {
		method = MethodZOH
	}
	newInteg, ok := integrators[method]
	if !ok {
		return nil, fmt.Errorf("unknown integration method: %s", method)
	}
	integ, err := newInteg(s.lin, cfg.Dt)
	if err != nil {
		return nil, err
	}

	steps := int(cfg.Duration/cfg.Dt + 0.5)
	result := &Result{
		Times:   make([]float64, 0, steps+1),
		Outputs: make([][]float64, 0, steps+1),
		Inputs:  make([][]float64, 0, steps+1),
		Metrics: make(map[string]float64),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	x := make(State, s.lin.n)
	copy(x, x0)
	dt := cfg.Dt

	for i := 0; ; i++ {
		t := float64(i) * dt
		ut := u(t)
		y := s.output(x, ut)
		for _, m := range s.metrics {
			m.Observe(y, ut, t)
		}
		result.Times = append(result.Times, t)
		result.Outputs = append(result.Outputs, y)
		result.Inputs = append(result.Inputs, append([]float64(nil), ut...))
		if i == steps {
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		x = integ.Step(x, ut, u(t+dt/2), u(t+dt))
		if !x.IsValid() {
			return result, SimError{Time: t + dt, Step: i + 1}
		}
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

func (s *Simulator) validate(u Signal, x0 State, cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if u == nil {
		return fmt.Errorf("input signal is nil")
	}
	if got := len(u(0)); got != s.lin.m {
		return fmt.Errorf("%w: signal has %d channels, system has %d inputs", lti.ErrDimensionMismatch, got, s.lin.m)
	}
	if x0 != nil && len(x0) != s.lin.n {
		return fmt.Errorf("%w: initial state has %d entries, system has %d states", lti.ErrDimensionMismatch, len(x0), s.lin.n)
	}
	return nil
}

func (s *Simulator) output(x State, u []float64) []float64 {
	y := make([]float64, s.p)
	if s.p == 0 {
		return y
	}
	yv := mat.NewVecDense(s.p, y)
	if s.c != nil && s.lin.n > 0 {
		yv.MulVec(s.c, mat.NewVecDense(s.lin.n, x))
	}
	if s.d != nil && s.lin.m > 0 {
		var du mat.VecDense
		du.MulVec(s.d, mat.NewVecDense(s.lin.m, u))
		yv.AddVec(yv, &du)
	}
	return y
}
