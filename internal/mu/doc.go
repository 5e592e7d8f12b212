// Package mu bounds the structured singular value of a sampled frequency
// response.
//
// An uncertainty [Structure] lists the diagonal blocks of Δ. For each grid
// point the [Engine] returns an upper bound and a lower bound on µ(M(jω)).
// The reference engine [NewDScaled] computes
//
//	upper = min over D of σ̄(D M D⁻¹)
//	lower = max over sign patterns U of ρ(U M)
//
// with one positive scalar per block in D (the last fixed to 1). The lower
// bound is only valid for complex uncertainty and is reported as zero when
// a real block is present.
//
// # Thread Safety
//
// Engines are stateless and may be shared between goroutines.
package mu
