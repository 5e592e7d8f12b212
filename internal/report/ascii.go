package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/mu"
)

// dB converts a gain to decibels, flooring zero at -400 dB.
func dB(x float64) float64 {
	if x <= 0 {
		return -400
	}
	return 20 * math.Log10(x)
}

// resample picks width points from a curve sampled at increasing positive
// frequencies so that they are evenly spaced in log ω.
func resample(omega, ys []float64, width int) []float64 {
	if len(omega) <= width {
		return append([]float64(nil), ys...)
	}
	lo, hi := math.Log10(omega[0]), math.Log10(omega[len(omega)-1])
	out := make([]float64, width)
	for i := range out {
		target := lo + (hi-lo)*float64(i)/float64(width-1)
		k := sort.SearchFloat64s(omega, math.Pow(10, target))
		if k == len(omega) {
			k--
		}
		if k > 0 && math.Abs(math.Log10(omega[k-1])-target) < math.Abs(math.Log10(omega[k])-target) {
			k--
		}
		out[i] = ys[k]
	}
	return out
}

func positive(omega []float64, series ...[]float64) ([]float64, [][]float64) {
	var w []float64
	out := make([][]float64, len(series))
	for k, x := range omega {
		if x <= 0 {
			continue
		}
		w = append(w, x)
		for i := range series {
			out[i] = append(out[i], series[i][k])
		}
	}
	return w, out
}

// SigmaPlot draws every singular value of resp in dB against log ω.
func SigmaPlot(resp freq.Response, width, height int) string {
	r := resp.Sorted()
	sv := freq.SingularValues(r)
	if len(sv) == 0 {
		return ""
	}
	n := len(sv[0])
	series := make([][]float64, n)
	for i := range series {
		series[i] = make([]float64, len(sv))
		for k := range sv {
			series[i][k] = dB(sv[k][i])
		}
	}
	omega, series := positive(r.Omega, series...)
	if len(omega) == 0 {
		return ""
	}
	for i := range series {
		series[i] = resample(omega, series[i], width)
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(1),
		asciigraph.Caption(fmt.Sprintf("singular values (dB), %.3g to %.3g rad/s", omega[0], omega[len(omega)-1])),
	)
}

// MuPlot draws the µ upper and lower bounds against log ω.
func MuPlot(b mu.Bounds, width, height int) string {
	idx := make([]int, len(b.Omega))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool { return b.Omega[idx[x]] < b.Omega[idx[y]] })
	omega := make([]float64, len(idx))
	upper := make([]float64, len(idx))
	lower := make([]float64, len(idx))
	for k, i := range idx {
		omega[k], upper[k], lower[k] = b.Omega[i], b.Upper[i], b.Lower[i]
	}
	omega, series := positive(omega, upper, lower)
	if len(omega) == 0 {
		return ""
	}
	for i := range series {
		series[i] = resample(omega, series[i], width)
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Blue),
		asciigraph.Caption(fmt.Sprintf("mu upper (red) / lower (blue), %.3g to %.3g rad/s", omega[0], omega[len(omega)-1])),
	)
}

// StepPlot draws y(t) sampled on a uniform time grid.
func StepPlot(times, y []float64, width, height int) string {
	if len(y) == 0 || len(times) != len(y) {
		return ""
	}
	return asciigraph.Plot(y,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.Caption(fmt.Sprintf("step response, 0 to %.3g s", times[len(times)-1])),
	)
}
