package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/san-kum/loopshape/internal/config"
	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/pipeline"
)

// MonteCarlo perturbs every coefficient of the named systems by a relative
// amount drawn uniformly from [-Perturbation, Perturbation]. An empty
// Systems list perturbs the first system of the scenario. A zero Seed
// seeds from the clock.
type MonteCarlo struct {
	Systems      []string `yaml:"systems"`
	Perturbation float64  `yaml:"perturbation"`
	Trials       int      `yaml:"trials"`
	Seed         int64    `yaml:"seed"`
}

// Trial is one perturbed plant closed with the nominal controller.
type Trial struct {
	ID       int
	Stable   bool
	Abscissa float64
	Peak     float64
}

// Stats summarizes a Monte Carlo run.
type Stats struct {
	Stable    int
	Unstable  int
	WorstPeak float64
}

// RunMonteCarlo closes each perturbed plant of nominal.Scenario with the
// controller of nominal and records closed-loop stability and peak gain.
// Peak is NaN for unstable trials.
func RunMonteCarlo(ctx context.Context, nominal *pipeline.Report, mc *MonteCarlo, opts pipeline.Options) ([]Trial, error) {
	s := nominal.Scenario
	if mc.Trials < 1 || mc.Perturbation < 0 {
		return nil, fmt.Errorf("%w: %d trials at perturbation %g", ErrInvalidSweep, mc.Trials, mc.Perturbation)
	}
	targets := mc.Systems
	if len(targets) == 0 && len(s.Systems) > 0 {
		targets = []string{s.Systems[0].Name}
	}
	for _, name := range targets {
		if findSystem(s, name) == nil {
			return nil, fmt.Errorf("%w: no system %q", ErrInvalidSweep, name)
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	seed := mc.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	grid := pipeline.Grid(s)

	trials := make([]Trial, 0, mc.Trials)
	for id := 0; id < mc.Trials; id++ {
		if err := ctx.Err(); err != nil {
			return trials, err
		}
		p := s.Clone()
		for _, name := range targets {
			perturb(findSystem(p, name), rng, mc.Perturbation)
		}
		plant, err := pipeline.BuildPlant(p)
		if err != nil {
			return trials, fmt.Errorf("trial %d: %w", id, err)
		}
		cl, err := lti.LowerLFT(plant, nominal.Result.Controller, s.Measurements, s.Controls)
		if err != nil {
			return trials, fmt.Errorf("trial %d: %w", id, err)
		}

		t := Trial{ID: id, Abscissa: Abscissa(cl), Peak: math.NaN()}
		t.Stable = t.Abscissa < stableTol(cl)
		if t.Stable {
			resp, err := freq.Evaluate(cl, grid)
			if err != nil {
				return trials, fmt.Errorf("trial %d: %w", id, err)
			}
			pk, err := freq.PeakNorm(resp)
			if err != nil {
				return trials, fmt.Errorf("trial %d: %w", id, err)
			}
			t.Peak = pk.Value
		}
		trials = append(trials, t)

		if (id+1)%10 == 0 {
			log.Info("monte carlo", "trials", id+1, "of", mc.Trials)
		}
	}
	return trials, nil
}

// perturb scales every transfer function coefficient, or every entry of
// A for a state-space system, by 1+δ with δ uniform in [-rel, rel].
func perturb(c *config.SystemConfig, rng *rand.Rand, rel float64) {
	draw := func(v float64) float64 { return v * (1 + (rng.Float64()*2-1)*rel) }
	if len(c.Den) > 0 {
		for i := range c.Num {
			c.Num[i] = draw(c.Num[i])
		}
		for i := range c.Den {
			c.Den[i] = draw(c.Den[i])
		}
		return
	}
	for i := range c.A {
		for j := range c.A[i] {
			c.A[i][j] = draw(c.A[i][j])
		}
	}
}

// Summarize counts stable trials and finds the worst stable peak.
func Summarize(trials []Trial) Stats {
	var st Stats
	for _, t := range trials {
		if !t.Stable {
			st.Unstable++
			continue
		}
		st.Stable++
		st.WorstPeak = math.Max(st.WorstPeak, t.Peak)
	}
	return st
}
