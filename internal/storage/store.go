package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/synth"
)

var (
	// ErrInvalidName indicates a record name that cannot be a directory.
	ErrInvalidName = errors.New("storage: invalid record name")

	// ErrNotFound indicates a record that was never saved.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	metadataFile = "metadata.json"
	responseFile = "response.csv"
)

// Store keeps named records under a base directory, one subdirectory each.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Matrices is a JSON-friendly realization.
type Matrices struct {
	A [][]float64 `json:"a,omitempty"`
	B [][]float64 `json:"b,omitempty"`
	C [][]float64 `json:"c,omitempty"`
	D [][]float64 `json:"d"`
}

func FromSystem(sys lti.StateSpace) Matrices {
	return Matrices{
		A: linalg.ToRows(sys.A()),
		B: linalg.ToRows(sys.B()),
		C: linalg.ToRows(sys.C()),
		D: linalg.ToRows(sys.D()),
	}
}

func (m Matrices) System() (lti.StateSpace, error) {
	return lti.New(linalg.FromRows(m.A), linalg.FromRows(m.B), linalg.FromRows(m.C), linalg.FromRows(m.D))
}

// Record is a saved synthesis result.
type Record struct {
	Name       string       `json:"name"`
	Scenario   string       `json:"scenario"`
	Timestamp  time.Time    `json:"timestamp"`
	Gamma      float64      `json:"gamma"`
	Peak       float64      `json:"peak"`
	PeakOmega  float64      `json:"peak_omega"`
	Controller Matrices     `json:"controller"`
	Steps      []synth.Step `json:"steps"`
	Outputs    int          `json:"outputs"`
	Inputs     int          `json:"inputs"`
}

// NewRecord captures a synthesis result and its closed-loop peak.
func NewRecord(name, scenario string, res synth.Result, peak freq.Peak) *Record {
	return &Record{
		Name:       name,
		Scenario:   scenario,
		Timestamp:  time.Now(),
		Gamma:      res.Gamma,
		Peak:       peak.Value,
		PeakOmega:  peak.Omega,
		Controller: FromSystem(res.Controller),
		Steps:      res.Iterations,
	}
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Save writes rec and the closed-loop response under rec.Name, replacing
// any earlier record of that name.
func (s *Store) Save(rec *Record, resp freq.Response) error {
	if err := validName(rec.Name); err != nil {
		return err
	}
	dir := filepath.Join(s.baseDir, rec.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	rec.Outputs, rec.Inputs = resp.Outputs, resp.Inputs
	metaFile, err := os.Create(filepath.Join(dir, metadataFile))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return err
	}

	csvFile, err := os.Create(filepath.Join(dir, responseFile))
	if err != nil {
		return err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	header := []string{"omega"}
	for i := 0; i < resp.Outputs; i++ {
		for j := 0; j < resp.Inputs; j++ {
			header = append(header, fmt.Sprintf("re%d_%d", i+1, j+1), fmt.Sprintf("im%d_%d", i+1, j+1))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for k, w0 := range resp.Omega {
		row := []string{strconv.FormatFloat(w0, 'g', -1, 64)}
		for _, v := range resp.Values[k] {
			row = append(row, strconv.FormatFloat(real(v), 'g', -1, 64), strconv.FormatFloat(imag(v), 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable record, skipping directories without valid
// metadata.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, err
	}

	recs := make([]Record, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func (s *Store) Load(name string) (*Record, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, name, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadResponse reads back the closed-loop response saved with name.
func (s *Store) LoadResponse(name string) (freq.Response, error) {
	rec, err := s.Load(name)
	if err != nil {
		return freq.Response{}, err
	}
	file, err := os.Open(filepath.Join(s.baseDir, name, responseFile))
	if err != nil {
		return freq.Response{}, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return freq.Response{}, err
	}
	resp := freq.Response{Outputs: rec.Outputs, Inputs: rec.Inputs}
	width := 1 + 2*rec.Outputs*rec.Inputs
	for line, row := range records[min(1, len(records)):] {
		if len(row) != width {
			return freq.Response{}, fmt.Errorf("storage: %s line %d has %d fields, want %d", responseFile, line+2, len(row), width)
		}
		vals := make([]float64, len(row))
		for i, field := range row {
			if vals[i], err = strconv.ParseFloat(field, 64); err != nil {
				return freq.Response{}, fmt.Errorf("storage: %s line %d: %w", responseFile, line+2, err)
			}
		}
		m := make([]complex128, rec.Outputs*rec.Inputs)
		for i := range m {
			m[i] = complex(vals[1+2*i], vals[2+2*i])
		}
		resp.Omega = append(resp.Omega, vals[0])
		resp.Values = append(resp.Values, m)
	}
	return resp, nil
}
