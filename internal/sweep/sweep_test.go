package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/loopshape/internal/config"
	"github.com/san-kum/loopshape/internal/pipeline"
	"github.com/san-kum/loopshape/internal/synth"
)

var quiet = pipeline.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

func coarse() *config.Scenario {
	s := config.GetPreset("mixed_sensitivity")
	s.Grid.Points = 200
	return s
}

func TestValues(t *testing.T) {
	tests := []struct {
		sw   Sweep
		want []float64
	}{
		{Sweep{Min: 1, Max: 2, Steps: 3}, []float64{1, 1.5, 2}},
		{Sweep{Min: 4, Max: 9, Steps: 1}, []float64{4}},
	}
	for _, tt := range tests {
		got := tt.sw.Values()
		if len(got) != len(tt.want) {
			t.Fatalf("expected %v, got %v", tt.want, got)
		}
		for i := range got {
			if math.Abs(got[i]-tt.want[i]) > 1e-15 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		}
	}
}

func TestRunSweep(t *testing.T) {
	s := coarse()
	sw := &Sweep{System: "plant", Field: FieldGain, Min: 0.5, Max: 1.5, Steps: 3}
	points, err := Run(context.Background(), s, sw, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}

	nominal, err := pipeline.Run(context.Background(), s, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if mid := points[1]; !mid.Feasible() || math.Abs(mid.Gamma-nominal.Result.Gamma) > 1e-12 {
		t.Errorf("expected nominal gamma %g at gain 1, got %+v", nominal.Result.Gamma, mid)
	}
	for _, p := range points {
		if p.Feasible() {
			if p.Gamma <= s.Bracket.Low || p.Gamma >= s.Bracket.High {
				t.Errorf("gamma %g outside bracket at %g", p.Gamma, p.Value)
			}
			if math.Abs(p.Peak-p.Gamma)/p.Gamma > 1e-2 {
				t.Errorf("peak %g far from gamma %g at %g", p.Peak, p.Gamma, p.Value)
			}
		} else if !errors.Is(p.Err, synth.ErrSynthesisInfeasible) {
			t.Errorf("unexpected error at %g: %v", p.Value, p.Err)
		}
	}
	if s.Systems[0].Gain != 0 {
		t.Error("sweep modified the base scenario")
	}
}

func TestSweepValidation(t *testing.T) {
	tests := []struct {
		name string
		sw   Sweep
	}{
		{"no steps", Sweep{System: "plant", Field: FieldGain, Min: 1, Max: 2}},
		{"reversed", Sweep{System: "plant", Field: FieldGain, Min: 2, Max: 1, Steps: 2}},
		{"unknown system", Sweep{System: "ghost", Field: FieldGain, Min: 1, Max: 2, Steps: 2}},
		{"unknown field", Sweep{System: "plant", Field: "pole", Min: 1, Max: 2, Steps: 2}},
		{"num index", Sweep{System: "plant", Field: FieldNum, Index: 1, Min: 1, Max: 2, Steps: 2}},
		{"den index", Sweep{System: "plant", Field: FieldDen, Index: -1, Min: 1, Max: 2, Steps: 2}},
		{"zero gain", Sweep{System: "plant", Field: FieldGain, Min: -1, Max: 1, Steps: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), coarse(), &tt.sw, quiet)
			if !errors.Is(err, ErrInvalidSweep) {
				t.Errorf("expected ErrInvalidSweep, got %v", err)
			}
		})
	}
}

func TestSweepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sw := &Sweep{System: "plant", Field: FieldNum, Index: 0, Min: 9, Max: 11, Steps: 2}
	points, err := Run(ctx, coarse(), sw, quiet)
	if !errors.Is(err, context.Canceled) || len(points) != 0 {
		t.Errorf("expected canceled with no points, got %d points, %v", len(points), err)
	}
}

func TestLoadSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	data := "system: plant\nfield: den\nindex: 2\nmin: -1.2\nmax: -0.8\nsteps: 5\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	sw, err := LoadSweep(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Sweep{System: "plant", Field: FieldDen, Index: 2, Min: -1.2, Max: -0.8, Steps: 5}
	if *sw != want {
		t.Errorf("expected %+v, got %+v", want, *sw)
	}
	if _, err := LoadSweep(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMonteCarloWithoutPerturbation(t *testing.T) {
	nominal, err := pipeline.Run(context.Background(), coarse(), quiet)
	if err != nil {
		t.Fatal(err)
	}
	trials, err := RunMonteCarlo(context.Background(), nominal, &MonteCarlo{Trials: 3, Seed: 1}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 3 {
		t.Fatalf("expected 3 trials, got %d", len(trials))
	}
	for _, tr := range trials {
		if !tr.Stable {
			t.Fatalf("trial %d: nominal loop reported unstable (abscissa %g)", tr.ID, tr.Abscissa)
		}
		if rel := math.Abs(tr.Peak-nominal.Peak.Value) / nominal.Peak.Value; rel > 1e-6 {
			t.Errorf("trial %d: peak %g differs from nominal %g", tr.ID, tr.Peak, nominal.Peak.Value)
		}
	}
	if st := Summarize(trials); st.Stable != 3 || st.Unstable != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestMonteCarloIsReproducible(t *testing.T) {
	nominal, err := pipeline.Run(context.Background(), coarse(), quiet)
	if err != nil {
		t.Fatal(err)
	}
	mc := &MonteCarlo{Systems: []string{"plant"}, Perturbation: 0.05, Trials: 4, Seed: 42}
	a, err := RunMonteCarlo(context.Background(), nominal, mc, quiet)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RunMonteCarlo(context.Background(), nominal, mc, quiet)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i].Stable != b[i].Stable || a[i].Abscissa != b[i].Abscissa {
			t.Errorf("trial %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestMonteCarloValidation(t *testing.T) {
	nominal := &pipeline.Report{Scenario: coarse()}
	for _, mc := range []*MonteCarlo{
		{Trials: 0},
		{Trials: 1, Perturbation: -0.1},
		{Trials: 1, Systems: []string{"ghost"}},
	} {
		if _, err := RunMonteCarlo(context.Background(), nominal, mc, quiet); !errors.Is(err, ErrInvalidSweep) {
			t.Errorf("%+v: expected ErrInvalidSweep, got %v", mc, err)
		}
	}
}

func TestPerturb(t *testing.T) {
	c := config.SystemConfig{Num: []float64{10}, Den: []float64{1, 0, -1}}
	perturb(&c, rand.New(rand.NewSource(7)), 0.1)
	if c.Den[1] != 0 {
		t.Errorf("zero coefficient moved to %g", c.Den[1])
	}
	if math.Abs(c.Num[0]-10) > 1 || math.Abs(c.Den[0]-1) > 0.1 || math.Abs(c.Den[2]+1) > 0.1 {
		t.Errorf("perturbation out of range: %+v", c)
	}

	ss := config.SystemConfig{A: [][]float64{{-2}}, B: [][]float64{{1}}, C: [][]float64{{1}}}
	perturb(&ss, rand.New(rand.NewSource(7)), 0.5)
	if a := ss.A[0][0]; a > -1 || a < -3 {
		t.Errorf("perturbed A out of range: %g", a)
	}
}
