package pipeline

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/san-kum/loopshape/internal/mu"
	"github.com/san-kum/loopshape/internal/synth"
)

// Registry maps engine names to constructors.
type Registry struct {
	synths map[string]func(*slog.Logger) synth.Engine
	mus    map[string]func() mu.Engine
}

func NewRegistry() *Registry {
	r := &Registry{
		synths: make(map[string]func(*slog.Logger) synth.Engine),
		mus:    make(map[string]func() mu.Engine),
	}

	r.synths["riccati"] = func(log *slog.Logger) synth.Engine {
		e := synth.NewRiccati()
		e.Logger = log
		return e
	}
	r.mus["dscaled"] = func() mu.Engine { return mu.NewDScaled() }

	return r
}

// RegisterSynth adds or replaces a synthesis engine.
func (r *Registry) RegisterSynth(name string, fn func(*slog.Logger) synth.Engine) {
	r.synths[name] = fn
}

// RegisterMu adds or replaces a µ engine.
func (r *Registry) RegisterMu(name string, fn func() mu.Engine) {
	r.mus[name] = fn
}

func (r *Registry) GetSynth(name string, log *slog.Logger) (synth.Engine, error) {
	fn, ok := r.synths[name]
	if !ok {
		return nil, fmt.Errorf("unknown synthesis engine: %s", name)
	}
	return fn(log), nil
}

func (r *Registry) GetMu(name string) (mu.Engine, error) {
	fn, ok := r.mus[name]
	if !ok {
		return nil, fmt.Errorf("unknown mu engine: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListSynths() []string {
	return sortedKeys(r.synths)
}

func (r *Registry) ListMus() []string {
	return sortedKeys(r.mus)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
