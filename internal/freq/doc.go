// Package freq evaluates continuous-time systems on the imaginary axis.
//
// A [Response] holds the complex transfer matrix G(jω) = C(jωI - A)⁻¹B + D at
// every point of a [Grid]. From it the package derives singular values and
// the sampled peak norm
//
//	max over grid of σ̄(G(jω))
//
// which is the figure reported against the γ returned by synthesis. The peak
// is a lower bound on the true H∞ norm: a resonance that falls between grid
// points is missed, so its accuracy depends on how densely the grid covers
// the frequencies that matter.
//
// # Thread Safety
//
// All functions are safe for concurrent use. Evaluate fans grid points out
// over several goroutines; systems are immutable so no locking is needed.
package freq
