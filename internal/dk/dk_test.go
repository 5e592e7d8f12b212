package dk

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/mu"
	"github.com/san-kum/loopshape/internal/synth"
	"gonum.org/v1/gonum/mat"
)

type fakeProblem struct {
	scaled int
}

func (p *fakeProblem) Channels() (int, int)    { return 1, 1 }
func (p *fakeProblem) Structure() mu.Structure { return mu.Structure{{Size: 1}, {Size: 1}} }

func (p *fakeProblem) Scaled(scalings []lti.StateSpace) (lti.StateSpace, error) {
	p.scaled++
	return lti.Identity(3), nil
}

func (p *fakeProblem) MuResponse(k lti.StateSpace) (freq.Response, error) {
	return freq.Response{Omega: []float64{1, 10}, Values: make([][]complex128, 2), Outputs: 2, Inputs: 2}, nil
}

type fakeSynth struct {
	calls  int
	failAt int
}

func (s *fakeSynth) Synthesize(ctx context.Context, plant lti.StateSpace, nMeas, nCtrl int, br synth.Bracket) (synth.Result, error) {
	s.calls++
	if s.calls == s.failAt {
		return synth.Result{}, &synth.BracketError{Bracket: br, Wrapped: synth.ErrSynthesisInfeasible}
	}
	return synth.Result{Controller: lti.Gain(float64(s.calls)), Gamma: 1 / float64(s.calls)}, nil
}

type fakeMu struct {
	peaks []float64
	calls int
}

func (m *fakeMu) Bounds(resp freq.Response, s mu.Structure) (mu.Bounds, error) {
	p := m.peaks[m.calls]
	m.calls++
	return mu.Bounds{
		Omega:    resp.Omega,
		Upper:    []float64{p / 2, p},
		Lower:    []float64{0, p / 2},
		Scalings: [][]float64{{2, 1}, {2, 1}},
	}, nil
}

var bracket = synth.Bracket{Low: 0.1, High: 10, Tolerance: 1e-3}

func TestLoopConverges(t *testing.T) {
	m := &fakeMu{peaks: []float64{2, 1.5, 1.4999}}
	l := NewLoop(&fakeProblem{}, &fakeSynth{}, m, Options{MaxIter: 10, Bracket: bracket})
	best, err := l.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if l.State() != StateConverged {
		t.Errorf("expected Converged, got %v", l.State())
	}
	if n := len(l.History()); n != 3 {
		t.Fatalf("expected 3 iterations, got %d", n)
	}
	if best.Index != 2 || best.MuPeak != 1.4999 || best.MuOmega != 10 {
		t.Errorf("expected best iteration 2 at 10 rad/s, got %+v", best)
	}
}

func TestLoopMaxIterations(t *testing.T) {
	m := &fakeMu{peaks: []float64{3, 2, 1}}
	l := NewLoop(&fakeProblem{}, &fakeSynth{}, m, Options{MaxIter: 2, Bracket: bracket})
	best, err := l.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if l.State() != StateMaxIterationsReached {
		t.Errorf("expected MaxIterationsReached, got %v", l.State())
	}
	if best.MuPeak != 2 || len(l.History()) != 2 {
		t.Errorf("expected best peak 2 after 2 iterations, got %g after %d", best.MuPeak, len(l.History()))
	}
}

func TestLoopFitsScalingsBetweenIterations(t *testing.T) {
	m := &fakeMu{peaks: []float64{3, 2}}
	l := NewLoop(&fakeProblem{}, &fakeSynth{}, m, Options{MaxIter: 2, Bracket: bracket})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	h := l.History()
	if g := h[0].Scalings[0].D().At(0, 0); g != 1 {
		t.Errorf("expected unit initial scaling, got %g", g)
	}
	if g := h[1].Scalings[0].D().At(0, 0); math.Abs(g-2) > 1e-12 {
		t.Errorf("expected fitted scaling 2, got %g", g)
	}
	if g := h[1].Scalings[1].D().At(0, 0); g != 1 {
		t.Errorf("expected last block fixed at 1, got %g", g)
	}
}

func TestLoopStopsOnLateInfeasibility(t *testing.T) {
	m := &fakeMu{peaks: []float64{3, 2, 1}}
	l := NewLoop(&fakeProblem{}, &fakeSynth{failAt: 3}, m, Options{MaxIter: 10, Bracket: bracket})
	best, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("expected best iteration, got error %v", err)
	}
	if l.State() != StateStopped {
		t.Errorf("expected Stopped, got %v", l.State())
	}
	if best.Index != 1 || best.MuPeak != 2 {
		t.Errorf("expected iteration 1 with peak 2, got %+v", best)
	}
}

func TestLoopFirstIterationInfeasible(t *testing.T) {
	m := &fakeMu{peaks: []float64{3}}
	l := NewLoop(&fakeProblem{}, &fakeSynth{failAt: 1}, m, Options{Bracket: bracket})
	if _, err := l.Run(context.Background()); !errors.Is(err, synth.ErrSynthesisInfeasible) {
		t.Errorf("expected ErrSynthesisInfeasible, got %v", err)
	}
	if len(l.History()) != 0 {
		t.Errorf("expected empty history, got %d", len(l.History()))
	}
}

func TestLoopCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewLoop(&fakeProblem{}, &fakeSynth{}, &fakeMu{}, Options{Bracket: bracket})
	if _, err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if l.State() != StateStopped {
		t.Errorf("expected Stopped, got %v", l.State())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateInitializeScaling, "InitializeScaling"},
		{StateFitScaling, "FitScalingTransferFunction"},
		{StateMaxIterationsReached, "MaxIterationsReached"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
	if StateFitScaling.Terminal() || !StateConverged.Terminal() {
		t.Error("unexpected Terminal result")
	}
}

func TestFitConstant(t *testing.T) {
	d, err := Fitter{}.Fit([]float64{1, 2, 3}, []float64{1, 4, 16})
	if err != nil {
		t.Fatal(err)
	}
	if d.States() != 0 || math.Abs(d.D().At(0, 0)-4) > 1e-12 {
		t.Errorf("expected static gain 4, got %v", d)
	}
}

func TestFitFirstOrder(t *testing.T) {
	omega := freq.Logspace(1e-2, 1e3, 60)
	mags := make([]float64, len(omega))
	for i, w := range omega {
		s := complex(0, w)
		mags[i] = cmplx.Abs(2 * (s + 1) / (s + 10))
	}
	d, err := Fitter{Order: 1, MaxEvaluations: 2000}.Fit(omega, mags)
	if err != nil {
		t.Fatal(err)
	}
	if !lti.IsStable(d) {
		t.Fatalf("fitted scaling is unstable: %v", lti.Poles(d))
	}
	for i, w := range omega {
		g, err := d.Eval(complex(0, w))
		if err != nil {
			t.Fatal(err)
		}
		if rel := math.Abs(cmplx.Abs(g[0])-mags[i]) / mags[i]; rel > 1e-3 {
			t.Errorf("%g rad/s: expected %g, got %g", w, mags[i], cmplx.Abs(g[0]))
		}
	}
}

func TestFitRejectsBadMagnitudes(t *testing.T) {
	tests := []struct {
		name  string
		omega []float64
		mags  []float64
	}{
		{"empty", nil, nil},
		{"length", []float64{1, 2}, []float64{1}},
		{"zero", []float64{1}, []float64{0}},
		{"inf", []float64{1}, []float64{math.Inf(1)}},
	}
	for _, tt := range tests {
		if _, err := (Fitter{Order: 1}).Fit(tt.omega, tt.mags); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestScaleStaticPlant(t *testing.T) {
	d := mat.NewDense(3, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	p := lti.StaticGain(d)
	s := mu.Structure{{Size: 1}, {Size: 1}}

	same, err := Scale(p, s, []lti.StateSpace{lti.Gain(1), lti.Gain(1)}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !lti.Equal(same, p, 1e-12) {
		t.Errorf("unit scaling changed the plant: %v", same)
	}

	got, err := Scale(p, s, []lti.StateSpace{lti.Gain(2), lti.Gain(1)}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := mat.NewDense(3, 3, []float64{
		1, 4, 6,
		2, 5, 6,
		3.5, 8, 9,
	})
	if !mat.EqualApprox(got.D(), want, 1e-12) {
		t.Errorf("expected\n%v\ngot\n%v", mat.Formatted(want), mat.Formatted(got.D()))
	}
}

func TestScaleDimensionMismatch(t *testing.T) {
	p := lti.Identity(3)
	s := mu.Structure{{Size: 1}, {Size: 1}}
	if _, err := Scale(p, s, []lti.StateSpace{lti.Gain(1)}, 1, 1); !errors.Is(err, lti.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := Scale(p, s, []lti.StateSpace{lti.Gain(1), lti.Gain(1)}, 2, 1); !errors.Is(err, lti.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
