package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/loopshape/internal/config"
	"github.com/san-kum/loopshape/internal/dk"
	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/interconnect"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/mu"
	"github.com/san-kum/loopshape/internal/sim"
	"github.com/san-kum/loopshape/internal/synth"
)

// Options carries the collaborators of a run. Zero values select
// NewRegistry and slog.Default.
type Options struct {
	Registry *Registry
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Registry == nil {
		o.Registry = NewRegistry()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Report is the outcome of a synthesis run. Peak is the sampled H∞ norm of
// the closed loop over the scenario grid, a lower bound on the true norm.
type Report struct {
	Scenario       *config.Scenario
	Plant          lti.StateSpace
	Result         synth.Result
	Response       freq.Response
	SingularValues [][]float64
	Peak           freq.Peak
	Elapsed        time.Duration
}

// DKReport is the outcome of a D-K run. Best is the iteration with the
// lowest µ peak.
type DKReport struct {
	Scenario *config.Scenario
	Plant    lti.StateSpace
	Best     dk.Iteration
	History  []dk.Iteration
	State    dk.State
	Elapsed  time.Duration
}

// BuildPlant realizes every system of s and wires them into the
// generalized plant.
func BuildPlant(s *config.Scenario) (lti.StateSpace, error) {
	b := interconnect.NewBuilder()
	for _, in := range s.Inputs {
		if err := b.AddInput(in.Name, in.Size); err != nil {
			return lti.StateSpace{}, err
		}
	}
	for _, c := range s.Systems {
		sys, err := c.System()
		if err != nil {
			return lti.StateSpace{}, err
		}
		if err := b.AddComponent(c.Name, sys); err != nil {
			return lti.StateSpace{}, err
		}
		l, err := interconnect.ParseList(c.Input)
		if err != nil {
			return lti.StateSpace{}, &interconnect.WiringError{Component: c.Name, Wrapped: err}
		}
		b.Connect(c.Name, l)
	}
	out, err := interconnect.ParseList(s.Outputs)
	if err != nil {
		return lti.StateSpace{}, &interconnect.WiringError{Wrapped: err}
	}
	b.AddOutput(out...)
	return b.Build(interconnect.BuildOptions{
		Minimal:   s.Minreal.Enabled,
		Tolerance: s.Minreal.Tolerance,
	})
}

// Bracket converts the scenario bracket.
func Bracket(s *config.Scenario) synth.Bracket {
	return synth.Bracket{
		Low:       s.Bracket.Low,
		High:      s.Bracket.High,
		Tolerance: s.Bracket.Tol,
		MaxIter:   s.Bracket.MaxIter,
	}
}

// Grid returns the logarithmic evaluation grid of s.
func Grid(s *config.Scenario) freq.Grid {
	return freq.Logspace(s.Grid.Min, s.Grid.Max, s.Grid.Points)
}

// Structure converts the scenario uncertainty blocks.
func Structure(s *config.Scenario) mu.Structure {
	out := make(mu.Structure, len(s.DK.Blocks))
	for i, b := range s.DK.Blocks {
		out[i] = mu.Block{Size: b.Size, Repeated: b.Repeated, Real: b.Real}
	}
	return out
}

func prepare(s *config.Scenario, log *slog.Logger) (lti.StateSpace, error) {
	if err := s.Validate(); err != nil {
		return lti.StateSpace{}, stageErr(StageConfig, err)
	}
	plant, err := BuildPlant(s)
	if err != nil {
		return lti.StateSpace{}, stageErr(StageInterconnect, err)
	}
	log.Info("plant assembled", "scenario", s.Name, "states", plant.States(),
		"inputs", plant.Inputs(), "outputs", plant.Outputs())
	return plant, nil
}

// Run synthesizes a controller for the scenario and evaluates the closed
// loop on its grid.
func Run(ctx context.Context, s *config.Scenario, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("scenario", s.Name)
	start := time.Now()

	plant, err := prepare(s, log)
	if err != nil {
		return nil, err
	}

	engine, err := opts.Registry.GetSynth(s.Engine, log)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}
	res, err := engine.Synthesize(ctx, plant, s.Measurements, s.Controls, Bracket(s))
	if err != nil {
		return nil, stageErr(StageSynthesize, err)
	}
	log.Info("controller synthesized", "gamma", res.Gamma, "steps", len(res.Iterations),
		"controller_states", res.Controller.States())

	resp, err := freq.Evaluate(res.ClosedLoop, Grid(s))
	if err != nil {
		return nil, stageErr(StageEvaluate, err)
	}
	peak, err := freq.PeakNorm(resp)
	if err != nil {
		return nil, stageErr(StageEvaluate, err)
	}
	log.Info("closed loop evaluated", "points", resp.Len(), "peak", peak.Value, "omega", peak.Omega)

	return &Report{
		Scenario:       s,
		Plant:          plant,
		Result:         res,
		Response:       resp,
		SingularValues: freq.SingularValues(resp),
		Peak:           peak,
		Elapsed:        time.Since(start),
	}, nil
}

// RunDK runs D-K iteration on the scenario's uncertainty structure.
func RunDK(ctx context.Context, s *config.Scenario, opts Options) (*DKReport, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("scenario", s.Name)
	start := time.Now()

	if len(s.DK.Blocks) == 0 {
		return nil, stageErr(StageConfig, fmt.Errorf("%w: no uncertainty blocks", config.ErrInvalidScenario))
	}
	plant, err := prepare(s, log)
	if err != nil {
		return nil, err
	}
	engine, err := opts.Registry.GetSynth(s.Engine, log)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}
	muEngine, err := opts.Registry.GetMu(s.DK.Engine)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}

	prob := &dk.Interconnection{
		Plant:  plant,
		Blocks: Structure(s),
		Grid:   Grid(s),
		NMeas:  s.Measurements,
		NCtrl:  s.Controls,
	}
	loop := dk.NewLoop(prob, engine, muEngine, dk.Options{
		MaxIter:   s.DK.Iterations,
		Tolerance: s.DK.Tolerance,
		Bracket:   Bracket(s),
		Fitter:    dk.Fitter{Order: s.DK.Order},
		Logger:    log,
	})
	best, err := loop.Run(ctx)
	if err != nil {
		return nil, stageErr(StageMu, err)
	}
	log.Info("dk finished", "state", loop.State(), "iterations", len(loop.History()),
		"mu_peak", best.MuPeak, "gamma", best.Gamma)

	return &DKReport{
		Scenario: s,
		Plant:    plant,
		Best:     best,
		History:  loop.History(),
		State:    loop.State(),
		Elapsed:  time.Since(start),
	}, nil
}

// Simulate drives the closed loop of r with a unit step on exogenous input
// channel in, starting at rest.
func Simulate(ctx context.Context, r *Report, in int, cfg sim.Config) (*sim.Result, error) {
	cl := r.Result.ClosedLoop
	if in < 0 || in >= cl.Inputs() {
		return nil, stageErr(StageSimulate, fmt.Errorf("%w: input %d of %d", lti.ErrDimensionMismatch, in, cl.Inputs()))
	}
	s := sim.New(cl)
	for i := 0; i < cl.Outputs(); i++ {
		s.AddMetric(outputMetric{sim.NewPeakAbs(i), fmt.Sprintf("peak_abs[%d]", i)})
	}
	res, err := s.Run(ctx, sim.Step(cl.Inputs(), in), nil, cfg)
	if err != nil {
		return res, stageErr(StageSimulate, err)
	}
	return res, nil
}

// outputMetric renames a per-channel metric.
type outputMetric struct {
	sim.Metric
	name string
}

func (m outputMetric) Name() string { return m.name }
