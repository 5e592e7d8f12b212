package synth

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/loopshape/internal/lti"
)

// DefaultMaxIter bounds the γ search when a Bracket leaves MaxIter unset.
const DefaultMaxIter = 60

// Bracket is the γ search interval and the stopping tolerance on its width.
type Bracket struct {
	Low       float64
	High      float64
	Tolerance float64
	MaxIter   int
}

// Validate checks 0 <= Low < High and Tolerance > 0.
func (b Bracket) Validate() error {
	switch {
	case math.IsNaN(b.Low) || math.IsNaN(b.High) || math.IsInf(b.High, 0):
		return fmt.Errorf("%w: non-finite bound", ErrInvalidBracket)
	case b.Low < 0:
		return fmt.Errorf("%w: low %g is negative", ErrInvalidBracket, b.Low)
	case b.Low >= b.High:
		return fmt.Errorf("%w: low %g is not below high %g", ErrInvalidBracket, b.Low, b.High)
	case !(b.Tolerance > 0):
		return fmt.Errorf("%w: tolerance %g must be positive", ErrInvalidBracket, b.Tolerance)
	case b.MaxIter < 0:
		return fmt.Errorf("%w: max iterations %d is negative", ErrInvalidBracket, b.MaxIter)
	}
	return nil
}

func (b Bracket) maxIter() int {
	if b.MaxIter == 0 {
		return DefaultMaxIter
	}
	return b.MaxIter
}

// Step records one γ tested during the search.
type Step struct {
	Gamma    float64
	Feasible bool
	Reason   string
}

// Result is a synthesized controller. Gamma is the smallest γ found
// feasible; ClosedLoop is the lower LFT of the plant and Controller.
type Result struct {
	Controller lti.StateSpace
	ClosedLoop lti.StateSpace
	Gamma      float64
	Iterations []Step
}

// Engine synthesizes a controller for a generalized plant whose last nMeas
// outputs are measurements and last nCtrl inputs are controls. On failure it
// returns an error matching ErrSynthesisInfeasible.
type Engine interface {
	Synthesize(ctx context.Context, plant lti.StateSpace, nMeas, nCtrl int, br Bracket) (Result, error)
}
