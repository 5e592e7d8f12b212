package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
)

// firstOrder is 1/(s+1).
func firstOrder(t *testing.T) lti.StateSpace {
	t.Helper()
	sys, err := lti.New(
		linalg.FromRows([][]float64{{-1}}),
		linalg.FromRows([][]float64{{1}}),
		linalg.FromRows([][]float64{{1}}),
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

func TestSimulatorStepResponse(t *testing.T) {
	for _, method := range []string{"", MethodZOH, MethodRK4} {
		t.Run("method="+method, func(t *testing.T) {
			s := New(firstOrder(t))
			result, err := s.Run(context.Background(), Step(1, 0), nil, Config{Dt: 0.01, Duration: 5, Method: method})
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if len(result.Times) != 501 || len(result.Outputs) != 501 {
				t.Fatalf("expected 501 samples, got %d", len(result.Times))
			}
			for _, k := range []int{10, 100, 500} {
				want := 1 - math.Exp(-result.Times[k])
				if got := result.Outputs[k][0]; math.Abs(got-want) > 1e-8 {
					t.Errorf("t=%g: expected %.10f, got %.10f", result.Times[k], want, got)
				}
			}
		})
	}
}

func TestZOHHandlesStiffSystems(t *testing.T) {
	sys, err := lti.New(
		linalg.FromRows([][]float64{{-1e6, 0}, {0, -1}}),
		linalg.FromRows([][]float64{{1e6}, {1}}),
		linalg.FromRows([][]float64{{1, 1}}),
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	result, err := New(sys).Run(context.Background(), Step(1, 0), nil, Config{Dt: 0.1, Duration: 2})
	if err != nil {
		t.Fatal(err)
	}
	last := result.Outputs[len(result.Outputs)-1][0]
	if want := 2 - math.Exp(-2); math.Abs(last-want) > 1e-6 {
		t.Errorf("expected %g, got %g", want, last)
	}
}

func TestSimulatorOscillator(t *testing.T) {
	sys, err := lti.New(
		linalg.FromRows([][]float64{{0, 1}, {-1, 0}}),
		linalg.FromRows([][]float64{{0}, {1}}),
		linalg.FromRows([][]float64{{1, 0}}),
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	s := New(sys)
	result, err := s.Run(context.Background(), Step(1, -1), State{1, 0}, Config{Dt: 0.01, Duration: 1})
	if err != nil {
		t.Fatal(err)
	}
	last := result.Outputs[len(result.Outputs)-1][0]
	if math.Abs(last-math.Cos(1)) > 1e-6 {
		t.Errorf("expected cos(1), got %.8f", last)
	}
}

func TestSimulatorFeedthrough(t *testing.T) {
	s := New(lti.Gain(3))
	result, err := s.Run(context.Background(), Step(1, 0), nil, Config{Dt: 0.5, Duration: 1})
	if err != nil {
		t.Fatal(err)
	}
	for k, y := range result.Outputs {
		if y[0] != 3 {
			t.Errorf("sample %d: expected 3, got %g", k, y[0])
		}
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s := New(firstOrder(t))

	tests := []struct {
		name string
		u    Signal
		x0   State
		cfg  Config
	}{
		{"zero dt", Step(1, 0), nil, Config{Dt: 0, Duration: 1.0}},
		{"negative dt", Step(1, 0), nil, Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", Step(1, 0), nil, Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Step(1, 0), nil, Config{Dt: 0.1, Duration: -1.0}},
		{"nil signal", nil, nil, Config{Dt: 0.1, Duration: 1.0}},
		{"signal width", Step(2, 0), nil, Config{Dt: 0.1, Duration: 1.0}},
		{"state width", Step(1, 0), State{1, 2}, Config{Dt: 0.1, Duration: 1.0}},
		{"unknown method", Step(1, 0), nil, Config{Dt: 0.1, Duration: 1.0, Method: "euler"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Run(context.Background(), tt.u, tt.x0, tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSimulatorDiverges(t *testing.T) {
	sys, err := lti.New(
		linalg.FromRows([][]float64{{1000}}),
		linalg.FromRows([][]float64{{1}}),
		linalg.FromRows([][]float64{{1}}),
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(sys).Run(context.Background(), Step(1, 0), State{1}, Config{Dt: 1, Duration: 100, Method: MethodRK4})
	var se SimError
	if !errors.As(err, &se) {
		t.Fatalf("expected SimError, got %v", err)
	}
}

func TestSimulatorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(firstOrder(t)).Run(ctx, Step(1, 0), nil, Config{Dt: 0.1, Duration: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSimulatorMetrics(t *testing.T) {
	s := New(firstOrder(t))
	peak, iae := NewPeakAbs(0), NewIAE(0)
	s.AddMetric(peak)
	s.AddMetric(iae)

	// ∫₀¹ (1 - e^{-t}) dt = e^{-1}
	result, err := s.Run(context.Background(), Step(1, 0), nil, Config{Dt: 0.001, Duration: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := result.Metrics["peak_abs"]; math.Abs(got-(1-math.Exp(-1))) > 1e-6 {
		t.Errorf("expected peak 1-1/e, got %g", got)
	}
	if got := result.Metrics["iae"]; math.Abs(got-math.Exp(-1)) > 1e-3 {
		t.Errorf("expected iae 1/e, got %g", got)
	}
}

func TestAnalyzeStep(t *testing.T) {
	times := make([]float64, 2001)
	y := make([]float64, len(times))
	for i := range times {
		times[i] = float64(i) * 0.005
		y[i] = 1 - math.Exp(-times[i])
	}
	y[len(y)-1] = 1
	info := AnalyzeStep(times, y)
	if info.Overshoot != 0 {
		t.Errorf("expected no overshoot, got %g", info.Overshoot)
	}
	if want := math.Log(9); math.Abs(info.RiseTime-want) > 0.01 {
		t.Errorf("expected rise time %g, got %g", want, info.RiseTime)
	}
	if want := math.Log(50); math.Abs(info.Settling-want) > 0.01 {
		t.Errorf("expected settling time %g, got %g", want, info.Settling)
	}

	info = AnalyzeStep([]float64{0, 1, 2, 3}, []float64{0, 1.5, 0.9, 1})
	if math.Abs(info.Overshoot-50) > 1e-12 || info.Peak != 1.5 {
		t.Errorf("expected 50%% overshoot at 1.5, got %g%% at %g", info.Overshoot, info.Peak)
	}
	if info.Settling != 3 {
		t.Errorf("expected settling at 3, got %g", info.Settling)
	}

	info = AnalyzeStep(nil, nil)
	if !math.IsNaN(info.RiseTime) {
		t.Errorf("expected NaN rise time, got %g", info.RiseTime)
	}
}
