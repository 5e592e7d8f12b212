package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/san-kum/loopshape/internal/freq"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"
)

// SavePlot writes a plot of every singular value of resp in dB against a
// logarithmic frequency axis. Points at ω = 0 are left out. A .svg path
// selects SVG output, anything else PNG.
func SavePlot(path string, resp freq.Response, title string) error {
	r := resp.Sorted()
	sv := freq.SingularValues(r)
	if len(sv) == 0 {
		return freq.ErrEmptyGrid
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "frequency (rad/s)"
	p.Y.Label.Text = "singular value (dB)"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	for i := range sv[0] {
		pts := make(plotter.XYs, 0, len(sv))
		for k, w := range r.Omega {
			if w <= 0 {
				continue
			}
			pts = append(pts, plotter.XY{X: w, Y: dB(sv[k][i])})
		}
		if len(pts) == 0 {
			return fmt.Errorf("%w: no positive frequencies", freq.ErrInvalidFrequency)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("sigma %d", i+1), line)
	}

	return savePlot(p, 8, 5, path)
}

// SaveStepPlot writes the sampled response y(t) of a simulation.
func SaveStepPlot(path string, times, y []float64, title string) error {
	if len(times) == 0 || len(times) != len(y) {
		return fmt.Errorf("report: %d times, %d samples", len(times), len(y))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(times))
	for i := range times {
		pts[i] = plotter.XY{X: times[i], Y: y[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = plotutil.Color(0)
	p.Add(line)
	return savePlot(p, 8, 5, path)
}

func savePlot(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if strings.EqualFold(filepath.Ext(filename), ".svg") {
		return savePlotSVG(p, widthIn, heightIn, filename)
	}
	return savePlotPNG(p, widthIn, heightIn, filename)
}

func savePlotSVG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	c := vgsvg.New(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create svg: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := c.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write svg: %w", err)
	}
	return bw.Flush()
}

func savePlotPNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(150),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}
