package lti

import "errors"

// Domain errors for system construction and composition.
var (
	// ErrMalformedSystem indicates a realization whose matrices are not
	// conformant, or coefficients that do not describe a proper system.
	ErrMalformedSystem = errors.New("lti: malformed system")

	// ErrSingularLoop indicates an algebraic loop whose I - D1*D2 is not
	// invertible.
	ErrSingularLoop = errors.New("lti: algebraic loop is not invertible")

	// ErrPole indicates evaluation of a transfer matrix at one of its poles.
	ErrPole = errors.New("lti: evaluation point is a pole of the system")

	// ErrDimensionMismatch indicates operands whose input/output sizes do not
	// line up.
	ErrDimensionMismatch = errors.New("lti: dimension mismatch")
)
