package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/san-kum/loopshape/internal/config"
	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSweep is returned for a malformed sweep definition.
var ErrInvalidSweep = errors.New("sweep: invalid definition")

// Coefficient fields a sweep can vary.
const (
	FieldNum  = "num"
	FieldDen  = "den"
	FieldGain = "gain"
)

// Sweep varies one coefficient of one system linearly from Min to Max.
type Sweep struct {
	System string  `yaml:"system"`
	Field  string  `yaml:"field"`
	Index  int     `yaml:"index"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Steps  int     `yaml:"steps"`
}

// Point is the outcome at one parameter value. Err holds a failed
// synthesis, typically an infeasible bracket.
type Point struct {
	Value    float64
	Gamma    float64
	Peak     float64
	Abscissa float64
	Err      error
}

// Feasible reports whether a controller was found.
func (p Point) Feasible() bool { return p.Err == nil }

// LoadSweep reads a sweep definition from YAML.
func LoadSweep(path string) (*Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sw Sweep
	if err := yaml.Unmarshal(data, &sw); err != nil {
		return nil, err
	}
	return &sw, nil
}

// Values returns the parameter values in order.
func (sw *Sweep) Values() []float64 {
	if sw.Steps == 1 {
		return []float64{sw.Min}
	}
	out := make([]float64, sw.Steps)
	step := (sw.Max - sw.Min) / float64(sw.Steps-1)
	for i := range out {
		out[i] = sw.Min + float64(i)*step
	}
	return out
}

func (sw *Sweep) validate(s *config.Scenario) error {
	if sw.Steps < 1 || sw.Max < sw.Min {
		return fmt.Errorf("%w: %d steps over [%g, %g]", ErrInvalidSweep, sw.Steps, sw.Min, sw.Max)
	}
	c := findSystem(s, sw.System)
	if c == nil {
		return fmt.Errorf("%w: no system %q", ErrInvalidSweep, sw.System)
	}
	if len(c.Den) == 0 {
		return fmt.Errorf("%w: %s is not a transfer function", ErrInvalidSweep, sw.System)
	}
	switch sw.Field {
	case FieldGain:
		// a zero gain reads as unity
		if sw.Min <= 0 && sw.Max >= 0 {
			return fmt.Errorf("%w: gain range [%g, %g] contains zero", ErrInvalidSweep, sw.Min, sw.Max)
		}
	case FieldNum:
		if sw.Index < 0 || sw.Index >= len(c.Num) {
			return fmt.Errorf("%w: %s has %d numerator coefficients", ErrInvalidSweep, sw.System, len(c.Num))
		}
	case FieldDen:
		if sw.Index < 0 || sw.Index >= len(c.Den) {
			return fmt.Errorf("%w: %s has %d denominator coefficients", ErrInvalidSweep, sw.System, len(c.Den))
		}
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidSweep, sw.Field)
	}
	return nil
}

func findSystem(s *config.Scenario, name string) *config.SystemConfig {
	for i := range s.Systems {
		if s.Systems[i].Name == name {
			return &s.Systems[i]
		}
	}
	return nil
}

func (sw *Sweep) apply(c *config.SystemConfig, v float64) {
	switch sw.Field {
	case FieldGain:
		c.Gain = v
	case FieldNum:
		c.Num[sw.Index] = v
	case FieldDen:
		c.Den[sw.Index] = v
	}
}

// Run redesigns the controller at every value of sw. Synthesis failures
// are recorded per point; configuration and wiring failures abort.
func Run(ctx context.Context, base *config.Scenario, sw *Sweep, opts pipeline.Options) ([]Point, error) {
	if err := sw.validate(base); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	values := sw.Values()
	points := make([]Point, 0, len(values))
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return points, err
		}
		s := base.Clone()
		sw.apply(findSystem(s, sw.System), v)

		p := Point{Value: v, Gamma: math.NaN(), Peak: math.NaN(), Abscissa: math.NaN()}
		r, err := pipeline.Run(ctx, s, opts)
		var se *pipeline.StageError
		switch {
		case err == nil:
			p.Gamma, p.Peak = r.Result.Gamma, r.Peak.Value
			p.Abscissa = Abscissa(r.Result.ClosedLoop)
		case errors.As(err, &se) && se.Stage == pipeline.StageSynthesize:
			p.Err = err
		default:
			return points, fmt.Errorf("%s=%g: %w", sw.System, v, err)
		}
		points = append(points, p)
		log.Info("sweep point", "step", i+1, "of", len(values), "value", v, "gamma", p.Gamma, "feasible", p.Feasible())
	}
	return points, nil
}

// Abscissa returns the largest real part among the poles of sys, -Inf for
// a static system.
func Abscissa(sys lti.StateSpace) float64 {
	out := math.Inf(-1)
	for _, p := range lti.Poles(sys) {
		out = math.Max(out, real(p))
	}
	return out
}

// stableTol bounds the abscissa accepted as stable relative to the size of A.
func stableTol(sys lti.StateSpace) float64 {
	return 1e-9 * math.Max(1, linalg.MaxAbs(sys.A()))
}
