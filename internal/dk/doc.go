// Package dk runs D-K iteration: alternating H∞ controller synthesis on a
// D-scaled plant with µ analysis of the resulting closed loop.
//
// The [Loop] is an explicit state machine
//
//	InitializeScaling → SynthesizeController → ComputeMuUpperBound
//	    → FitScaling → SynthesizeController → ...
//
// ending in Converged, MaxIterationsReached or Stopped. Every pass appends
// an immutable [Iteration] to the history, so convergence can be inspected
// after the fact without re-running anything.
//
// # Example
//
//	prob := &dk.Interconnection{Plant: p, Blocks: s, Grid: g, NMeas: 1, NCtrl: 1}
//	loop := dk.NewLoop(prob, synth.NewRiccati(), mu.NewDScaled(), dk.Options{MaxIter: 4})
//	best, err := loop.Run(ctx)
//
// # Thread Safety
//
// A Loop is NOT safe for concurrent use. Iterations it hands out are never
// modified afterwards.
package dk
