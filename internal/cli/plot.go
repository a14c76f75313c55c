package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/history"
	"github.com/roach88/patchbay/internal/scope"
)

// PlotOptions holds flags for the plot command.
type PlotOptions struct {
	*RootOptions
	Ticks  int
	DT     float64
	Inject []string
	Probe  []string
	Out    string
	Title  string
}

// PlotResult describes a written chart.
type PlotResult struct {
	Patch  string   `json:"patch"`
	Out    string   `json:"out"`
	Ticks  int64    `json:"ticks"`
	Traces []string `json:"traces"`
}

// NewPlotCommand creates the plot command.
func NewPlotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plot <patch>",
		Short: "Run a patch and chart port histories",
		Long: `Run a patch for --ticks ticks and draw the recorded history of the
probed output ports against simulated time. The image format follows the
--out extension (.png, .svg or .pdf).

Examples:
  patchbay plot spring.cue --ticks 2000 --probe pos.out --probe vel.out --out spring.png`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Ticks, "ticks", 1000, "ticks to run")
	cmd.Flags().Float64Var(&opts.DT, "dt", 0, "simulated step length (default: the patch's)")
	cmd.Flags().StringArrayVar(&opts.Inject, "inject", nil, "one-tick injection node.port=value[@tick] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Probe, "probe", nil, "output port to plot, node.port (repeatable; default all)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "scope.png", "output image")
	cmd.Flags().StringVar(&opts.Title, "title", "", "chart title (default: patch name)")

	return cmd
}

func runPlot(opts *PlotOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Ticks <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--ticks must be positive, got %d", opts.Ticks))
	}

	doc, err := loadPatch(f, path)
	if err != nil {
		return err
	}
	if opts.DT != 0 {
		doc.DT = opts.DT
	}
	injections, err := parseInjections(doc, opts.Inject)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --inject", err)
	}

	// Keep every tick so the chart covers the whole run.
	capacity := max(opts.Ticks, doc.HistoryCapacity, history.DefaultCapacity)
	eng, err := buildEngine(f, doc, engine.WithHistoryCapacity(capacity))
	if err != nil {
		return err
	}
	defer eng.Close()

	probes, err := resolveProbes(doc, eng, opts.Probe)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --probe", err)
	}

	if _, err := eng.Script(context.Background(), opts.Ticks, injections); err != nil {
		return WrapExitError(ExitCommandError, "invalid --inject", err)
	}

	traces := make([]scope.Trace, 0, len(probes))
	labels := make([]string, 0, len(probes))
	for _, p := range probes {
		samples, err := eng.History(p.Endpoint.Node, p.Endpoint.Port)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("cannot plot %s", p.Label), err)
		}
		traces = append(traces, scope.Trace{Label: p.Label, Samples: samples})
		labels = append(labels, p.Label)
	}

	title := opts.Title
	if title == "" {
		title = doc.Name
	}
	if err := scope.Save(opts.Out, traces, scope.Options{Title: title}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write chart", err)
	}

	result := PlotResult{Patch: doc.Name, Out: opts.Out, Ticks: eng.Ticks(), Traces: labels}
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Plotted %d trace(s) over %d ticks to %s\n", len(labels), result.Ticks, opts.Out)
	return nil
}
