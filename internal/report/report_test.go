package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/loopshape/internal/config"
	"github.com/san-kum/loopshape/internal/dk"
	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/mu"
	"github.com/san-kum/loopshape/internal/pipeline"
	"github.com/san-kum/loopshape/internal/synth"
	"gonum.org/v1/gonum/mat"
)

func lowpass(t *testing.T) freq.Response {
	t.Helper()
	sys, err := lti.New(
		mat.NewDense(1, 1, []float64{-1}),
		mat.NewDense(1, 2, []float64{1, 0.5}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 2, []float64{0, 0}),
	)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := freq.Evaluate(sys, freq.Logspace(1e-2, 1e2, 200))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestDB(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1, 0},
		{10, 20},
		{0.1, -20},
		{0, -400},
	}
	for _, tt := range tests {
		if got := dB(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("dB(%g): expected %g, got %g", tt.in, tt.want, got)
		}
	}
}

func TestResample(t *testing.T) {
	omega := []float64{1, 10, 100, 1000, 10000}
	ys := []float64{0, 1, 2, 3, 4}
	got := resample(omega, ys, 3)
	want := []float64{0, 2, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: expected %g, got %g", i, want[i], got[i])
		}
	}
	if got := resample(omega, ys, 10); len(got) != 5 {
		t.Errorf("expected short curves to pass through, got %d points", len(got))
	}
}

func TestSigmaPlot(t *testing.T) {
	out := SigmaPlot(lowpass(t), 60, 10)
	if !strings.Contains(out, "singular values (dB)") {
		t.Errorf("expected caption, got\n%s", out)
	}
	if SigmaPlot(freq.Response{}, 60, 10) != "" {
		t.Error("expected empty plot for empty response")
	}
}

func TestMuPlot(t *testing.T) {
	b := mu.Bounds{
		Omega: []float64{10, 0.1, 1},
		Upper: []float64{0.5, 0.2, 1.2},
		Lower: []float64{0.4, 0.1, 1.0},
	}
	if out := MuPlot(b, 40, 8); !strings.Contains(out, "mu upper") {
		t.Errorf("expected caption, got\n%s", out)
	}
}

func TestWriteCSV(t *testing.T) {
	resp := lowpass(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, resp); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != resp.Len()+1 {
		t.Fatalf("expected %d rows, got %d", resp.Len()+1, len(rows))
	}
	if strings.Join(rows[0], ",") != "omega,sigma1" {
		t.Errorf("unexpected header %v", rows[0])
	}
}

func TestSavePlot(t *testing.T) {
	tests := []struct {
		file  string
		magic string
	}{
		{"sigma.png", "\x89PNG"},
		{"sigma.svg", "<svg"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "plots", tt.file)
			if err := SavePlot(path, lowpass(t), "lowpass"); err != nil {
				t.Fatal(err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Contains(data[:min(len(data), 512)], []byte(tt.magic)) {
				t.Errorf("expected %q near the start of %s", tt.magic, tt.file)
			}
		})
	}
	if err := SavePlot(filepath.Join(t.TempDir(), "x.png"), freq.Response{}, "empty"); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestSaveStepPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "step.png")
	if err := SaveStepPlot(path, []float64{0, 1, 2}, []float64{0, 0.8, 1}, "step"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	if err := SaveStepPlot(path, []float64{0, 1}, []float64{0}, "bad"); err == nil {
		t.Error("expected error for mismatched samples")
	}
}

func TestStepPlot(t *testing.T) {
	out := StepPlot([]float64{0, 1, 2, 3}, []float64{0, 0.5, 0.9, 1}, 20, 5)
	if !strings.Contains(out, "step response") {
		t.Errorf("missing caption in %q", out)
	}
	if StepPlot(nil, nil, 20, 5) != "" {
		t.Error("expected empty plot for no samples")
	}
}

func TestSummary(t *testing.T) {
	r := &pipeline.Report{
		Scenario: &config.Scenario{Name: "demo"},
		Plant:    lti.Identity(2),
		Result:   synth.Result{Controller: lti.Gain(1), ClosedLoop: lti.Gain(0.5), Gamma: 0.4821},
		Peak:     freq.Peak{Value: 0.4819, Omega: 3},
	}
	out := Summary(r)
	for _, want := range []string{"demo", "Final Gamma", "0.4821", "Max Singular Value", "0.4819", "stable"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in\n%s", want, out)
		}
	}
}

func TestDKSummary(t *testing.T) {
	r := &pipeline.DKReport{
		Scenario: &config.Scenario{Name: "rp"},
		History:  []dk.Iteration{{Index: 0, Gamma: 2, MuPeak: 1.5}, {Index: 1, Gamma: 1.2, MuPeak: 0.9}},
		Best:     dk.Iteration{Index: 1, Gamma: 1.2, MuPeak: 0.9},
		State:    dk.StateConverged,
	}
	out := DKSummary(r)
	for _, want := range []string{"rp (D-K)", "Converged", "0.9"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in\n%s", want, out)
		}
	}
}
