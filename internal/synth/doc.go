// Package synth is the boundary between the loop-shaping pipeline and an
// H∞ synthesis routine.
//
// The pipeline only depends on [Engine]: given a generalized plant whose last
// nMeas outputs are measurements and last nCtrl inputs are controls, an
// engine searches a γ [Bracket] and returns a controller, the closed loop and
// the achieved γ. [NewRiccati] is a reference engine based on γ-bisection
// over the two H∞ algebraic Riccati equations.
//
// # Example
//
//	eng := synth.NewRiccati()
//	res, err := eng.Synthesize(ctx, plant, 1, 1, synth.Bracket{Low: 0.1, High: 8, Tolerance: 1e-3})
//	if errors.Is(err, synth.ErrSynthesisInfeasible) {
//		// widen the bracket or relax the weights
//	}
//
// # Thread Safety
//
// Engines hold no per-call state and may be shared between goroutines.
package synth
