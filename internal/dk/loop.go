package dk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/mu"
	"github.com/san-kum/loopshape/internal/synth"
)

// Options controls a Loop.
type Options struct {
	// MaxIter bounds the number of D-K passes. Zero means 4.
	MaxIter int
	// Tolerance is the relative µ peak improvement below which the loop
	// counts as converged. Zero means 1e-3.
	Tolerance float64
	Bracket   synth.Bracket
	Fitter    Fitter
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxIter == 0 {
		o.MaxIter = 4
	}
	if o.Tolerance == 0 {
		o.Tolerance = 1e-3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Loop drives D-K iteration over a Problem.
type Loop struct {
	problem Problem
	synth   synth.Engine
	mu      mu.Engine
	opts    Options

	state   State
	history []Iteration
}

// NewLoop returns a loop in StateInitializeScaling.
func NewLoop(p Problem, s synth.Engine, m mu.Engine, opts Options) *Loop {
	return &Loop{problem: p, synth: s, mu: m, opts: opts.withDefaults()}
}

// State returns the current phase.
func (l *Loop) State() State { return l.state }

// History returns the iterations recorded so far, oldest first.
func (l *Loop) History() []Iteration {
	return append([]Iteration(nil), l.history...)
}

func (l *Loop) best() Iteration {
	best := l.history[0]
	for _, it := range l.history[1:] {
		if it.MuPeak < best.MuPeak {
			best = it
		}
	}
	return best
}

func (l *Loop) transition(s State) {
	l.opts.Logger.Debug("dk state", "from", l.state, "to", s, "iteration", len(l.history))
	l.state = s
}

// Run iterates until the µ peak stops improving, MaxIter passes have run,
// or synthesis becomes infeasible after the first pass. It returns the
// iteration with the lowest µ peak.
func (l *Loop) Run(ctx context.Context) (Iteration, error) {
	if err := l.opts.Bracket.Validate(); err != nil {
		return Iteration{}, err
	}
	structure := l.problem.Structure()
	nMeas, nCtrl := l.problem.Channels()

	l.state = StateInitializeScaling
	l.history = nil
	scalings := make([]lti.StateSpace, len(structure))
	for i := range scalings {
		scalings[i] = lti.Gain(1)
	}

	for {
		if err := ctx.Err(); err != nil {
			l.transition(StateStopped)
			return Iteration{}, err
		}

		l.transition(StateSynthesizeController)
		plant, err := l.problem.Scaled(scalings)
		if err != nil {
			l.transition(StateStopped)
			return Iteration{}, fmt.Errorf("scale iteration %d: %w", len(l.history), err)
		}
		res, err := l.synth.Synthesize(ctx, plant, nMeas, nCtrl, l.opts.Bracket)
		if err != nil {
			l.transition(StateStopped)
			if errors.Is(err, synth.ErrSynthesisInfeasible) && len(l.history) > 0 {
				l.opts.Logger.Warn("synthesis infeasible, keeping best iteration", "iteration", len(l.history), "err", err)
				return l.best(), nil
			}
			return Iteration{}, fmt.Errorf("synthesize iteration %d: %w", len(l.history), err)
		}

		l.transition(StateComputeMuUpperBound)
		resp, err := l.problem.MuResponse(res.Controller)
		if err != nil {
			l.transition(StateStopped)
			return Iteration{}, fmt.Errorf("closed loop iteration %d: %w", len(l.history), err)
		}
		bounds, err := l.mu.Bounds(resp, structure)
		if err != nil {
			l.transition(StateStopped)
			return Iteration{}, fmt.Errorf("mu iteration %d: %w", len(l.history), err)
		}
		peak, omega := bounds.Peak()

		it := Iteration{
			Index:      len(l.history),
			Scalings:   append([]lti.StateSpace(nil), scalings...),
			Controller: res.Controller,
			Gamma:      res.Gamma,
			MuPeak:     peak,
			MuOmega:    omega,
			Bounds:     bounds,
		}
		l.opts.Logger.Info("dk iteration", "index", it.Index, "gamma", it.Gamma, "mu_peak", peak, "omega", omega)

		var prev float64
		if len(l.history) > 0 {
			prev = l.best().MuPeak
		}
		l.history = append(l.history, it)

		if it.Index > 0 && prev-peak <= l.opts.Tolerance*prev {
			l.transition(StateConverged)
			return l.best(), nil
		}
		if len(l.history) >= l.opts.MaxIter {
			l.transition(StateMaxIterationsReached)
			return l.best(), nil
		}

		l.transition(StateFitScaling)
		scalings, err = l.fit(bounds, len(structure))
		if err != nil {
			l.transition(StateStopped)
			return Iteration{}, fmt.Errorf("fit iteration %d: %w", it.Index, err)
		}
	}
}

// fit returns one SISO scaling per block from the per-frequency D values.
// The last block stays at 1.
func (l *Loop) fit(b mu.Bounds, blocks int) ([]lti.StateSpace, error) {
	out := make([]lti.StateSpace, blocks)
	out[blocks-1] = lti.Gain(1)
	mags := make([]float64, len(b.Omega))
	for i := 0; i < blocks-1; i++ {
		for k := range b.Omega {
			mags[k] = b.Scalings[k][i]
			if math.IsNaN(mags[k]) {
				return nil, fmt.Errorf("%w: scaling %d is NaN at %g rad/s", lti.ErrMalformedSystem, i, b.Omega[k])
			}
		}
		d, err := l.opts.Fitter.Fit(b.Omega, mags)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}
