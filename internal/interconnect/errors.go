package interconnect

import (
	"errors"
	"fmt"
)

// Domain errors for wiring and parsing.
var (
	// ErrUnresolvableInterconnection indicates an algebraic loop through the
	// component feedthroughs whose coupling matrix I - L is singular.
	ErrUnresolvableInterconnection = errors.New("interconnect: algebraic loop cannot be resolved")

	// ErrUnknownSignal indicates a reference to a signal that was never
	// declared.
	ErrUnknownSignal = errors.New("interconnect: unknown signal")

	// ErrUnconnectedInput indicates a component whose inputs were never wired.
	ErrUnconnectedInput = errors.New("interconnect: component input not connected")

	// ErrDuplicateSignal indicates a name registered twice.
	ErrDuplicateSignal = errors.New("interconnect: duplicate signal name")

	// ErrParse indicates a malformed wiring expression.
	ErrParse = errors.New("interconnect: cannot parse expression")
)

// WiringError attaches the component and signal involved to a wiring failure.
// Component is empty for external outputs.
type WiringError struct {
	Component string
	Signal    string
	Wrapped   error
}

func (e *WiringError) Error() string {
	where := "outputs"
	if e.Component != "" {
		where = fmt.Sprintf("component %q", e.Component)
	}
	if e.Signal != "" {
		return fmt.Sprintf("%s, signal %q: %v", where, e.Signal, e.Wrapped)
	}
	return fmt.Sprintf("%s: %v", where, e.Wrapped)
}

func (e *WiringError) Unwrap() error {
	return e.Wrapped
}
