package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/metrics"
	"github.com/roach88/patchbay/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Ticks       int64
	DT          float64
	Cadence     time.Duration
	Database    string
	Inject      []string
	Probe       []string
	MetricsAddr string

	// RunIDs overrides the run id generator (for testing). Defaults to
	// UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// ProbeValue is the final value of one probed port.
type ProbeValue struct {
	Port  string  `json:"port"`
	Value float64 `json:"value"`
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID       string            `json:"run_id"`
	Patch       string            `json:"patch"`
	Ticks       int64             `json:"ticks"`
	Time        float64           `json:"time"`
	DT          float64           `json:"dt"`
	Interrupted bool              `json:"interrupted,omitempty"`
	Probes      []ProbeValue      `json:"probes"`
	Degraded    map[string]uint64 `json:"degraded,omitempty"`
	Database    string            `json:"database,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommandWith(&RunOptions{RootOptions: rootOpts})
}

func newRunCommandWith(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <patch>",
		Short: "Run a patch",
		Long: `Load a patch and tick it through simulated time.

With --ticks the run stops after that many ticks; without it the patch runs
until interrupted. --cadence paces ticks in wall-clock time (default: as
fast as possible). Simulated time only depends on --dt.

Injections add a value to an input port for one tick:
  --inject integ.in=1        feeds the first tick
  --inject integ.in=1@10     feeds the tick after 10 ticks have completed

With --db every tick is logged to a SQLite run store for trace and replay.

Examples:
  patchbay run spring.cue --ticks 1000 --probe pos.out
  patchbay run feedback.yaml --ticks 4 --dt 1 --inject integ.in=1 --db runs.db
  patchbay run spring.cue --cadence 10ms --metrics-addr :9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Ticks, "ticks", 0, "ticks to run (0 = until interrupted)")
	cmd.Flags().Float64Var(&opts.DT, "dt", 0, "simulated step length (default: the patch's)")
	cmd.Flags().DurationVar(&opts.Cadence, "cadence", 0, "wall-clock interval between ticks")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store")
	cmd.Flags().StringArrayVar(&opts.Inject, "inject", nil, "one-tick injection node.port=value[@tick] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Probe, "probe", nil, "output port to report, node.port (repeatable; default all)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runPatch(opts *RunOptions, path string, cmd *cobra.Command) error {
	setupLogging(opts.RootOptions, cmd.ErrOrStderr())
	f := newFormatter(opts.RootOptions, cmd)

	if opts.Ticks < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--ticks must be non-negative, got %d", opts.Ticks))
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

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var (
		eng    *engine.Engine
		probes []probeRef
	)
	engineOpts := []engine.Option{
		engine.WithObserver(injectionSchedule(&eng, injections)),
	}
	if opts.Verbose {
		engineOpts = append(engineOpts, engine.WithObserver(engine.ObserverFunc(func(_ context.Context, r engine.TickReport) error {
			for _, p := range probes {
				if v, err := eng.PortValue(p.Endpoint.Node, p.Endpoint.Port); err == nil {
					f.VerboseLog("tick %d t=%g %s=%g", r.Tick, r.Time, p.Label, v)
				}
			}
			return nil
		})))
	}
	if opts.Ticks > 0 {
		engineOpts = append(engineOpts, engine.WithMaxTicks(opts.Ticks))
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDs(opts.RunIDs))
	}

	if opts.Database != "" {
		slog.Info("opening run store", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithObserver(store.NewRunLog(st, doc).WithInjections(injections)))
	}

	if opts.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		engineOpts = append(engineOpts, engine.WithObserver(reg))
		go func() {
			slog.Info("serving metrics", "addr", opts.MetricsAddr)
			if err := reg.Serve(ctx, opts.MetricsAddr); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	eng, err = buildEngine(f, doc, engineOpts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	probes, err = resolveProbes(doc, eng, opts.Probe)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --probe", err)
	}

	for _, inj := range injections {
		if inj.At != 0 {
			continue
		}
		if err := eng.Inject(inj.Node, inj.Port, inj.Value); err != nil {
			return WrapExitError(ExitCommandError, "invalid --inject", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := eng.Start(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	slog.Info("engine starting", "patch", doc.Name, "run_id", eng.RunID(), "dt", eng.DT(), "ticks", opts.Ticks)

	interrupted := false
	switch err := eng.Run(ctx, opts.Cadence); {
	case err == nil, engine.IsBudgetError(err):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		interrupted = true
	default:
		return WrapExitError(ExitFailure, "engine error", err)
	}
	slog.Info("engine stopped", "run_id", eng.RunID(), "ticks", eng.Ticks())

	summary := summarize(eng, doc.Name, probes)
	summary.Interrupted = interrupted
	summary.Database = opts.Database
	return outputRunSummary(f, summary)
}

// injectionSchedule feeds each injection right after the tick that
// completes its At count. At 0 injections are applied before the run.
func injectionSchedule(eng **engine.Engine, injections []engine.Injection) engine.Observer {
	byTick := make(map[int64][]engine.Injection)
	for _, inj := range injections {
		if inj.At > 0 {
			byTick[inj.At] = append(byTick[inj.At], inj)
		}
	}
	return engine.ObserverFunc(func(_ context.Context, r engine.TickReport) error {
		for _, inj := range byTick[r.Tick] {
			if err := (*eng).Inject(inj.Node, inj.Port, inj.Value); err != nil {
				return fmt.Errorf("inject %d.%s at tick %d: %w", inj.Node, inj.Port, inj.At, err)
			}
		}
		return nil
	})
}

func summarize(eng *engine.Engine, name string, probes []probeRef) RunSummary {
	s := RunSummary{
		RunID:    eng.RunID(),
		Patch:    name,
		Ticks:    eng.Ticks(),
		Time:     eng.Time(),
		DT:       eng.DT(),
		Probes:   make([]ProbeValue, 0, len(probes)),
		Degraded: make(map[string]uint64),
	}
	for _, p := range probes {
		v, _ := eng.PortValue(p.Endpoint.Node, p.Endpoint.Port)
		s.Probes = append(s.Probes, ProbeValue{Port: p.Label, Value: v})
	}
	eng.View(func(g *graph.Graph) {
		for _, n := range g.Nodes() {
			if d := eng.Degraded(n.ID); d.Count > 0 {
				s.Degraded[n.Name] = d.Count
			}
		}
	})
	return s
}

func outputRunSummary(f *OutputFormatter, s RunSummary) error {
	if f.JSON() {
		return f.Encode(CLIResponse{Status: "ok", Data: s, RunID: s.RunID})
	}

	w := f.Writer
	fmt.Fprintf(w, "Run %s: %s, %d ticks, t=%g (dt %g)\n", s.RunID, s.Patch, s.Ticks, s.Time, s.DT)
	if s.Interrupted {
		fmt.Fprintln(w, "  interrupted")
	}
	for _, p := range s.Probes {
		fmt.Fprintf(w, "  %s = %g\n", p.Port, p.Value)
	}
	for _, name := range sortedKeys(s.Degraded) {
		fmt.Fprintf(w, "  ! %s degraded on %d ticks\n", name, s.Degraded[name])
	}
	if s.Database != "" {
		fmt.Fprintf(w, "Logged to %s\n", s.Database)
	}
	return nil
}

func sortedKeys(m map[string]uint64) []string {
	return slices.Sorted(maps.Keys(m))
}
