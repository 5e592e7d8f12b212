package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/synth"
	"gonum.org/v1/gonum/mat"
)

func testResult(t *testing.T) (synth.Result, freq.Response) {
	t.Helper()
	k, err := lti.New(
		mat.NewDense(1, 1, []float64{-2}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{3}),
		mat.NewDense(1, 1, []float64{0.5}),
	)
	if err != nil {
		t.Fatal(err)
	}
	res := synth.Result{
		Controller: k,
		Gamma:      0.4821,
		Iterations: []synth.Step{{Gamma: 8, Feasible: true}, {Gamma: 4.05, Feasible: false, Reason: "X not PSD"}},
	}
	resp := freq.Response{
		Omega:   []float64{0.1, 1, 10},
		Values:  [][]complex128{{1 + 2i, 0.1}, {0.5 - 0.25i, 1e-7}, {0.123456789012345, -3i}},
		Outputs: 1,
		Inputs:  2,
	}
	return res, resp
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	res, resp := testResult(t)
	rec := NewRecord("design1", "mixed_sensitivity", res, freq.Peak{Value: 0.48, Omega: 2.5})
	if err := st.Save(rec, resp); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := st.Load("design1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Scenario != "mixed_sensitivity" {
		t.Errorf("expected scenario 'mixed_sensitivity', got '%s'", got.Scenario)
	}
	if got.Gamma != 0.4821 || got.PeakOmega != 2.5 {
		t.Errorf("expected gamma 0.4821 at 2.5, got %g at %g", got.Gamma, got.PeakOmega)
	}
	if len(got.Steps) != 2 || got.Steps[1].Reason != "X not PSD" {
		t.Errorf("expected 2 steps, got %+v", got.Steps)
	}

	k, err := got.Controller.System()
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if !lti.Equal(k, res.Controller, 0) {
		t.Errorf("expected controller %v, got %v", res.Controller, k)
	}

	back, err := st.LoadResponse("design1")
	if err != nil {
		t.Fatalf("load response failed: %v", err)
	}
	if back.Outputs != 1 || back.Inputs != 2 || back.Len() != 3 {
		t.Fatalf("expected 1x2 response on 3 points, got %dx%d on %d", back.Outputs, back.Inputs, back.Len())
	}
	for k := range resp.Omega {
		if back.Omega[k] != resp.Omega[k] {
			t.Errorf("point %d: expected omega %g, got %g", k, resp.Omega[k], back.Omega[k])
		}
		for i, v := range resp.Values[k] {
			if back.Values[k][i] != v {
				t.Errorf("point %d entry %d: expected %v, got %v", k, i, v, back.Values[k][i])
			}
		}
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 records, got %d", len(runs))
	}

	res, resp := testResult(t)
	for _, name := range []string{"a", "b"} {
		if err := st.Save(NewRecord(name, "s", res, freq.Peak{}), resp); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 records, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	res, resp := testResult(t)
	if err := st.Save(NewRecord("run", "s", res, freq.Peak{}), resp); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, f := range []string{"metadata.json", "response.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, "run", f)); os.IsNotExist(err) {
			t.Errorf("%s not created", f)
		}
	}
}

func TestStoreNames(t *testing.T) {
	st := New(t.TempDir())
	res, resp := testResult(t)
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := st.Save(NewRecord(name, "s", res, freq.Peak{}), resp); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}
	if _, err := st.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteJSON(t *testing.T) {
	res, _ := testResult(t)
	var buf bytes.Buffer
	if err := WriteJSON(&buf, NewRecord("x", "s", res, freq.Peak{Value: 1})); err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Name != "x" || rec.Peak != 1 || len(rec.Controller.A) != 1 {
		t.Errorf("unexpected record %+v", rec)
	}
}
