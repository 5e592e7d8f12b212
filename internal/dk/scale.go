package dk

import (
	"fmt"

	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/mu"
)

// Problem supplies the plant-specific hooks of the iteration.
type Problem interface {
	// Scaled returns the plant to synthesize against for the given block
	// scalings, one SISO system per uncertainty block.
	Scaled(scalings []lti.StateSpace) (lti.StateSpace, error)
	// MuResponse returns the unscaled closed-loop response seen by the
	// uncertainty structure when the plant is closed with k.
	MuResponse(k lti.StateSpace) (freq.Response, error)
	// Channels returns the number of measurements and controls.
	Channels() (nMeas, nCtrl int)
	// Structure returns the uncertainty structure, performance block last.
	Structure() mu.Structure
}

// Interconnection is the standard Problem for a generalized plant whose
// first Structure().Dim() inputs and outputs are the uncertainty and
// performance channels.
type Interconnection struct {
	Plant  lti.StateSpace
	Blocks mu.Structure
	Grid   freq.Grid
	NMeas  int
	NCtrl  int
}

func (p *Interconnection) Channels() (int, int)    { return p.NMeas, p.NCtrl }
func (p *Interconnection) Structure() mu.Structure { return p.Blocks }

func (p *Interconnection) Scaled(scalings []lti.StateSpace) (lti.StateSpace, error) {
	return Scale(p.Plant, p.Blocks, scalings, p.NMeas, p.NCtrl)
}

func (p *Interconnection) MuResponse(k lti.StateSpace) (freq.Response, error) {
	cl, err := lti.LowerLFT(p.Plant, k, p.NMeas, p.NCtrl)
	if err != nil {
		return freq.Response{}, err
	}
	return freq.Evaluate(cl, p.Grid)
}

// Scale returns diag(D, I) P diag(D⁻¹, I), where D repeats scalings[i]
// over the size of block i and the identities cover the measurement and
// control channels.
func Scale(plant lti.StateSpace, s mu.Structure, scalings []lti.StateSpace, nMeas, nCtrl int) (lti.StateSpace, error) {
	if len(scalings) != len(s) {
		return lti.StateSpace{}, fmt.Errorf("%w: %d scalings for %d blocks", lti.ErrDimensionMismatch, len(scalings), len(s))
	}
	n := s.Dim()
	if plant.Inputs() != n+nCtrl || plant.Outputs() != n+nMeas {
		return lti.StateSpace{}, fmt.Errorf("%w: plant is %dx%d, structure needs %dx%d",
			lti.ErrDimensionMismatch, plant.Outputs(), plant.Inputs(), n+nMeas, n+nCtrl)
	}
	var left, right []lti.StateSpace
	for i, b := range s {
		d := scalings[i]
		if d.Inputs() != 1 || d.Outputs() != 1 {
			return lti.StateSpace{}, fmt.Errorf("%w: scaling %d is not SISO", lti.ErrDimensionMismatch, i)
		}
		inv, err := lti.Inverse(d)
		if err != nil {
			return lti.StateSpace{}, fmt.Errorf("scaling %d: %w", i, err)
		}
		for j := 0; j < b.Size; j++ {
			left = append(left, d)
			right = append(right, inv)
		}
	}
	left = append(left, lti.Identity(nMeas))
	right = append(right, lti.Identity(nCtrl))

	l, err := lti.BlockDiagonal(left...)
	if err != nil {
		return lti.StateSpace{}, err
	}
	r, err := lti.BlockDiagonal(right...)
	if err != nil {
		return lti.StateSpace{}, err
	}
	pr, err := lti.Series(r, plant)
	if err != nil {
		return lti.StateSpace{}, err
	}
	return lti.Series(pr, l)
}
