package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/san-kum/loopshape/internal/interconnect"
	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGammaLow     = 0.1
	DefaultGammaHigh    = 8.0
	DefaultGammaTol     = 1e-3
	DefaultGridMin      = 1e-3
	DefaultGridMax      = 1e7
	DefaultGridPoints   = 2000
	DefaultMinrealTol   = lti.DefaultMinrealTol
	DefaultDKIterations = 4
	DefaultDKOrder      = 1
	DefaultDKTolerance  = 1e-3
	DefaultSynthEngine  = "riccati"
	DefaultMuEngine     = "dscaled"
)

// ErrInvalidScenario is returned by Validate.
var ErrInvalidScenario = errors.New("config: invalid scenario")

// Scenario describes a generalized plant, how to synthesize a controller
// for it and where to evaluate the result.
type Scenario struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description,omitempty"`
	Inputs       []SignalConfig `yaml:"inputs"`
	Systems      []SystemConfig `yaml:"systems"`
	Outputs      string         `yaml:"outputs"`
	Measurements int            `yaml:"measurements"`
	Controls     int            `yaml:"controls"`
	Engine       string         `yaml:"engine"`
	Bracket      BracketConfig  `yaml:"bracket"`
	Grid         GridConfig     `yaml:"grid"`
	Minreal      MinrealConfig  `yaml:"minreal"`
	DK           DKConfig       `yaml:"dk"`
}

// SignalConfig declares an external input.
type SignalConfig struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

// SystemConfig is one component. Either Num/Den or the A, B, C, D
// matrices are set. Input is the wiring list driving the component.
type SystemConfig struct {
	Name  string      `yaml:"name"`
	Num   []float64   `yaml:"num,omitempty"`
	Den   []float64   `yaml:"den,omitempty"`
	Gain  float64     `yaml:"gain,omitempty"`
	A     [][]float64 `yaml:"a,omitempty"`
	B     [][]float64 `yaml:"b,omitempty"`
	C     [][]float64 `yaml:"c,omitempty"`
	D     [][]float64 `yaml:"d,omitempty"`
	Input string      `yaml:"input"`
}

type BracketConfig struct {
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
	Tol     float64 `yaml:"tol"`
	MaxIter int     `yaml:"max_iter"`
}

type GridConfig struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Points int     `yaml:"points"`
}

type MinrealConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Tolerance float64 `yaml:"tolerance"`
}

// DKConfig holds D-K iteration settings. Blocks is the uncertainty
// structure over the leading inputs and outputs, performance block last.
type DKConfig struct {
	Engine     string        `yaml:"engine"`
	Iterations int           `yaml:"iterations"`
	Order      int           `yaml:"order"`
	Tolerance  float64       `yaml:"tolerance"`
	Blocks     []BlockConfig `yaml:"blocks,omitempty"`
}

type BlockConfig struct {
	Size     int  `yaml:"size"`
	Repeated bool `yaml:"repeated,omitempty"`
	Real     bool `yaml:"real,omitempty"`
}

func DefaultScenario() *Scenario {
	return &Scenario{
		Measurements: 1,
		Controls:     1,
		Engine:       DefaultSynthEngine,
		Bracket: BracketConfig{
			Low:  DefaultGammaLow,
			High: DefaultGammaHigh,
			Tol:  DefaultGammaTol,
		},
		Grid: GridConfig{
			Min:    DefaultGridMin,
			Max:    DefaultGridMax,
			Points: DefaultGridPoints,
		},
		Minreal: MinrealConfig{Enabled: true, Tolerance: DefaultMinrealTol},
		DK: DKConfig{
			Engine:     DefaultMuEngine,
			Iterations: DefaultDKIterations,
			Order:      DefaultDKOrder,
			Tolerance:  DefaultDKTolerance,
		},
	}
}

// Load reads a scenario, filling unset fields from DefaultScenario.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := DefaultScenario()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func Save(path string, s *Scenario) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (s *Scenario) Clone() *Scenario {
	data, err := yaml.Marshal(s)
	if err != nil {
		panic(err)
	}
	out := &Scenario{}
	if err := yaml.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
}

// Validate checks the scenario without building any system.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return invalid("name is empty")
	}
	if len(s.Inputs) == 0 {
		return invalid("no inputs")
	}
	for _, in := range s.Inputs {
		if in.Name == "" || in.Size <= 0 {
			return invalid("input %q has size %d", in.Name, in.Size)
		}
	}
	if len(s.Systems) == 0 {
		return invalid("no systems")
	}
	for _, sys := range s.Systems {
		if err := sys.validate(); err != nil {
			return err
		}
	}
	if s.Outputs == "" {
		return invalid("no outputs")
	}
	if _, err := interconnect.ParseList(s.Outputs); err != nil {
		return fmt.Errorf("%w: outputs: %w", ErrInvalidScenario, err)
	}
	if s.Measurements <= 0 || s.Controls <= 0 {
		return invalid("measurements %d and controls %d must be positive", s.Measurements, s.Controls)
	}
	b := s.Bracket
	if b.Low < 0 || b.High <= b.Low || b.Tol <= 0 || b.MaxIter < 0 {
		return invalid("bracket low=%g high=%g tol=%g max_iter=%d", b.Low, b.High, b.Tol, b.MaxIter)
	}
	g := s.Grid
	if g.Min <= 0 || g.Max <= g.Min || g.Points < 2 {
		return invalid("grid min=%g max=%g points=%d", g.Min, g.Max, g.Points)
	}
	if s.Minreal.Enabled && s.Minreal.Tolerance < 0 {
		return invalid("minreal tolerance %g is negative", s.Minreal.Tolerance)
	}
	if s.DK.Iterations < 0 || s.DK.Order < 0 || s.DK.Order > 1 || s.DK.Tolerance < 0 {
		return invalid("dk iterations=%d order=%d tolerance=%g", s.DK.Iterations, s.DK.Order, s.DK.Tolerance)
	}
	for i, blk := range s.DK.Blocks {
		if blk.Size <= 0 {
			return invalid("dk block %d has size %d", i, blk.Size)
		}
	}
	return nil
}

func (c SystemConfig) validate() error {
	if c.Name == "" {
		return invalid("system without a name")
	}
	tf := len(c.Den) > 0
	ss := len(c.A) > 0 || len(c.B) > 0 || len(c.C) > 0 || len(c.D) > 0
	if tf == ss {
		return invalid("system %q needs exactly one of num/den or a/b/c/d", c.Name)
	}
	if c.Input == "" {
		return invalid("system %q has no input", c.Name)
	}
	if _, err := interconnect.ParseList(c.Input); err != nil {
		return fmt.Errorf("%w: system %q: %w", ErrInvalidScenario, c.Name, err)
	}
	return nil
}

// System realizes the component. A zero Gain means 1.
func (c SystemConfig) System() (lti.StateSpace, error) {
	if len(c.Den) > 0 {
		gain := c.Gain
		if gain == 0 {
			gain = 1
		}
		tf, err := lti.FromCoefficients(c.Num, c.Den, gain)
		if err != nil {
			return lti.StateSpace{}, fmt.Errorf("system %q: %w", c.Name, err)
		}
		sys, err := tf.Realize()
		if err != nil {
			return lti.StateSpace{}, fmt.Errorf("system %q: %w", c.Name, err)
		}
		return sys, nil
	}
	sys, err := lti.New(linalg.FromRows(c.A), linalg.FromRows(c.B), linalg.FromRows(c.C), linalg.FromRows(c.D))
	if err != nil {
		return lti.StateSpace{}, fmt.Errorf("system %q: %w", c.Name, err)
	}
	return sys, nil
}
