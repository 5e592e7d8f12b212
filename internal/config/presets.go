package config

import "sort"

// Presets are the built-in scenarios by name.
var Presets = map[string]*Scenario{
	"mixed_sensitivity": {
		Name:        "mixed_sensitivity",
		Description: "unstable plant 10/((s-1)(s+1)) with weights Wt = 2.4s/(s+4), Wu = 1e-6",
		Inputs:      []SignalConfig{{Name: "yref", Size: 1}, {Name: "u", Size: 1}},
		Systems: []SystemConfig{
			{Name: "plant", Num: []float64{10}, Den: []float64{1, 0, -1}, Input: "[u]"},
			{Name: "wt", Num: []float64{2.4, 0}, Den: []float64{1, 4}, Input: "[plant]"},
			{Name: "wu", Num: []float64{1e-6}, Den: []float64{1}, Input: "[u]"},
		},
		Outputs:      "[wt; wu; yref - plant]",
		Measurements: 1,
		Controls:     1,
		Engine:       DefaultSynthEngine,
		Bracket:      BracketConfig{Low: 0.1, High: 8, Tol: 1e-3},
		Grid:         GridConfig{Min: 1e-3, Max: 1e7, Points: 2000},
		Minreal:      MinrealConfig{Enabled: true, Tolerance: DefaultMinrealTol},
		DK:           DKConfig{Engine: DefaultMuEngine, Iterations: DefaultDKIterations, Order: DefaultDKOrder, Tolerance: DefaultDKTolerance},
	},
	"robust_performance": {
		Name:        "robust_performance",
		Description: "first-order plant with multiplicative input uncertainty and a tracking performance weight",
		Inputs: []SignalConfig{
			{Name: "udel", Size: 1}, {Name: "yref", Size: 1}, {Name: "noise", Size: 1}, {Name: "u", Size: 1},
		},
		Systems: []SystemConfig{
			{Name: "plant", Num: []float64{1}, Den: []float64{1, 1}, Input: "[u + udel]"},
			{Name: "wdel", Num: []float64{0.5, 0.1}, Den: []float64{1, 4}, Input: "[u]"},
			{Name: "wp", Num: []float64{0.5}, Den: []float64{1, 0.05}, Input: "[yref - plant]"},
		},
		Outputs:      "[wdel; wp; 0.1*u; yref - plant - 0.01*noise]",
		Measurements: 1,
		Controls:     1,
		Engine:       DefaultSynthEngine,
		Bracket:      BracketConfig{Low: 0.01, High: 20, Tol: 1e-2},
		Grid:         GridConfig{Min: 1e-3, Max: 1e3, Points: 60},
		Minreal:      MinrealConfig{Enabled: true, Tolerance: DefaultMinrealTol},
		DK: DKConfig{
			Engine: DefaultMuEngine, Iterations: 3, Order: 1, Tolerance: 1e-2,
			Blocks: []BlockConfig{{Size: 1}, {Size: 2}},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Scenario {
	s, ok := Presets[name]
	if !ok {
		return nil
	}
	return s.Clone()
}

// ListPresets returns the preset names in sorted order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
