// Package sweep runs batches of synthesis problems derived from one
// scenario: coefficient sweeps that redesign the controller at every
// point, and Monte Carlo trials that perturb the plant and re-close the
// nominal loop.
package sweep
