package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrSynthesisInfeasible indicates that no controller achieving a γ in
	// the bracket was found, or that the iteration cap ran out first.
	ErrSynthesisInfeasible = errors.New("synth: no feasible controller in gamma bracket")

	// ErrInvalidBracket indicates a malformed γ bracket.
	ErrInvalidBracket = errors.New("synth: invalid gamma bracket")

	// ErrRiccati indicates that an algebraic Riccati equation has no
	// stabilizing solution to working precision.
	ErrRiccati = errors.New("synth: riccati equation has no stabilizing solution")
)

// BracketError attaches the search state to a synthesis failure.
type BracketError struct {
	Bracket    Bracket
	Iterations int
	Wrapped    error
}

func (e *BracketError) Error() string {
	return fmt.Sprintf("%v (gamma in [%g, %g], tol %g, %d iterations)",
		e.Wrapped, e.Bracket.Low, e.Bracket.High, e.Bracket.Tolerance, e.Iterations)
}

func (e *BracketError) Unwrap() error {
	return e.Wrapped
}
