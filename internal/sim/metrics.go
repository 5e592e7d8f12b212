package sim

import "math"

// PeakAbs tracks max |y_i| over a run.
type PeakAbs struct {
	name    string
	channel int
	peak    float64
}

func NewPeakAbs(channel int) *PeakAbs {
	return &PeakAbs{name: "peak_abs", channel: channel}
}

func (p *PeakAbs) Name() string { return p.name }

func (p *PeakAbs) Observe(y, u []float64, t float64) {
	if p.channel < len(y) {
		p.peak = math.Max(p.peak, math.Abs(y[p.channel]))
	}
}

func (p *PeakAbs) Value() float64 { return p.peak }
func (p *PeakAbs) Reset()         { p.peak = 0 }

// IAE integrates |y_i| with the rectangle rule, the integrated absolute
// error when y_i is a tracking error.
type IAE struct {
	name    string
	channel int
	sum     float64
	last    float64
	started bool
}

func NewIAE(channel int) *IAE {
	return &IAE{name: "iae", channel: channel}
}

func (e *IAE) Name() string { return e.name }

func (e *IAE) Observe(y, u []float64, t float64) {
	if e.channel >= len(y) {
		return
	}
	if e.started {
		e.sum += math.Abs(y[e.channel]) * (t - e.last)
	}
	e.last, e.started = t, true
}

func (e *IAE) Value() float64 { return e.sum }

func (e *IAE) Reset() {
	e.sum, e.last, e.started = 0, 0, false
}

// StepInfo summarizes a step response.
type StepInfo struct {
	Final     float64
	Peak      float64
	Overshoot float64 // percent of |Final|
	RiseTime  float64 // 10% to 90% of Final, NaN when never reached
	Settling  float64 // time of the last entry into the 2% band
}

// AnalyzeStep takes the final sample as the steady-state value.
func AnalyzeStep(times, y []float64) StepInfo {
	info := StepInfo{RiseTime: math.NaN(), Settling: math.NaN()}
	if len(y) == 0 || len(times) != len(y) {
		return info
	}
	final := y[len(y)-1]
	info.Final = final
	for _, v := range y {
		if math.Abs(v) > math.Abs(info.Peak) {
			info.Peak = v
		}
	}
	if final == 0 {
		return info
	}

	if over := (info.Peak - final) / final; over > 0 {
		info.Overshoot = 100 * over
	}

	t10, t90 := math.NaN(), math.NaN()
	for i, v := range y {
		r := v / final
		if math.IsNaN(t10) && r >= 0.1 {
			t10 = times[i]
		}
		if r >= 0.9 {
			t90 = times[i]
			break
		}
	}
	if !math.IsNaN(t10) && !math.IsNaN(t90) {
		info.RiseTime = t90 - t10
	}

	band := 0.02 * math.Abs(final)
	info.Settling = 0
	for i := len(y) - 1; i >= 0; i-- {
		if math.Abs(y[i]-final) > band {
			info.Settling = times[i+1]
			break
		}
	}
	return info
}
