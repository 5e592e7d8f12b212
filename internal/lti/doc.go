// Package lti provides continuous-time linear time-invariant systems.
//
// The package defines the value objects every other stage of the loop-shaping
// pipeline works with:
//
//   - [Transfer]: rational transfer function (numerator, denominator, gain)
//   - [StateSpace]: realization (A, B, C, D) backed by gonum matrices
//   - [Series], [Parallel], [Feedback], [BlockDiagonal]: block-diagram algebra
//   - [LowerLFT]: closing a generalized plant with a controller
//   - [Minreal]: removal of uncontrollable and unobservable modes
//
// # Example
//
//	p, _ := lti.FromCoefficients([]float64{10}, []float64{1, 0, -1}, 1)
//	plant, _ := p.Realize()
//	loop, _ := lti.Feedback(plant, lti.Gain(1), -1)
//
// # Thread Safety
//
// Systems are immutable after construction: accessors return copies and every
// operation returns a new system, so values may be shared freely between
// goroutines.
package lti
