// Package scope renders recorded port histories as line charts.
package scope

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/roach88/patchbay/internal/history"
)

// Trace is one named series.
type Trace struct {
	Label   string
	Samples []history.Sample
}

// Options controls the rendered chart.
type Options struct {
	Title  string
	Width  vg.Length
	Height vg.Length
	Format string // png, svg or pdf
}

func (o Options) withDefaults() Options {
	if o.Width == 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 4 * vg.Inch
	}
	if o.Format == "" {
		o.Format = "png"
	}
	return o
}

// Plot builds a chart with one line per trace, simulated time on the x axis.
func Plot(traces []Trace, opts Options) (*plot.Plot, error) {
	if len(traces) == 0 {
		return nil, fmt.Errorf("scope: nothing to plot")
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "time"
	p.Y.Label.Text = "value"
	p.Add(plotter.NewGrid())

	for i, tr := range traces {
		pts := make(plotter.XYs, len(tr.Samples))
		for j, s := range tr.Samples {
			pts[j].X = s.Time
			pts[j].Y = s.Value
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("scope: trace %q: %w", tr.Label, err)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i / len(plotutil.DefaultColors))
		p.Add(line)
		p.Legend.Add(tr.Label, line)
	}
	p.Legend.Top = true
	return p, nil
}

// Render writes the chart to w in opts.Format.
func Render(w io.Writer, traces []Trace, opts Options) error {
	opts = opts.withDefaults()
	p, err := Plot(traces, opts)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(opts.Width, opts.Height, opts.Format)
	if err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes the chart to a file; the format follows the extension.
func Save(path string, traces []Trace, opts Options) error {
	opts = opts.withDefaults()
	p, err := Plot(traces, opts)
	if err != nil {
		return err
	}
	return p.Save(opts.Width, opts.Height, path)
}
