package dk

import (
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/mu"
)

// State is the phase of a D-K loop.
type State int

const (
	StateInitializeScaling State = iota
	StateSynthesizeController
	StateComputeMuUpperBound
	StateFitScaling
	StateConverged
	StateMaxIterationsReached
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializeScaling:
		return "InitializeScaling"
	case StateSynthesizeController:
		return "SynthesizeController"
	case StateComputeMuUpperBound:
		return "ComputeMuUpperBound"
	case StateFitScaling:
		return "FitScalingTransferFunction"
	case StateConverged:
		return "Converged"
	case StateMaxIterationsReached:
		return "MaxIterationsReached"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the loop has finished.
func (s State) Terminal() bool {
	return s == StateConverged || s == StateMaxIterationsReached || s == StateStopped
}

// Iteration is the record of one D-K pass. Scalings are the D systems the
// controller was synthesized against.
type Iteration struct {
	Index      int
	Scalings   []lti.StateSpace
	Controller lti.StateSpace
	Gamma      float64
	MuPeak     float64
	MuOmega    float64
	Bounds     mu.Bounds
}
