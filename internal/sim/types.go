package sim

import (
	"fmt"
	"math"
)

// State is the state vector of a simulated system.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every entry is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Signal returns the input vector at time t.
type Signal func(t float64) []float64

// Step returns a unit step on input channel ch of an m-input system.
func Step(m, ch int) Signal {
	u := make([]float64, m)
	if ch >= 0 && ch < m {
		u[ch] = 1
	}
	return func(float64) []float64 { return u }
}

// Metric accumulates a scalar over a run.
type Metric interface {
	Name() string
	Observe(y, u []float64, t float64)
	Value() float64
	Reset()
}

// Integrator advances a linear system by one sample, given the input at
// the start, middle and end of the sample.
type Integrator interface {
	Step(x State, u0, uh, u1 []float64) State
}

// Integration methods.
const (
	MethodZOH = "zoh"
	MethodRK4 = "rk4"
)

var integrators = map[string]func(*linear, float64) (Integrator, error){
	MethodZOH: newZOH,
	MethodRK4: newRK4,
}

// Config sets the sample time, the horizon and the integration method.
// An empty Method selects MethodZOH.
type Config struct {
	Dt       float64
	Duration float64
	Method   string
}

// Result holds sampled outputs and inputs at Times.
type Result struct {
	Times   []float64
	Outputs [][]float64
	Inputs  [][]float64
	Metrics map[string]float64
}

// Channel returns output i across the run.
func (r *Result) Channel(i int) []float64 {
	out := make([]float64, len(r.Outputs))
	for k, y := range r.Outputs {
		out[k] = y[i]
	}
	return out
}

// SimError reports a state that left the finite range.
type SimError struct {
	Time float64
	Step int
}

func (e SimError) Error() string {
	return fmt.Sprintf("sim: state diverged at t=%.4g (step %d)", e.Time, e.Step)
}
