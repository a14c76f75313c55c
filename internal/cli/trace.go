package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // empty lists runs
	Node     string // name or id
	Port     string
	From     int64
	To       int64
}

// RunInfo summarises a stored run.
type RunInfo struct {
	ID        string  `json:"id"`
	Patch     string  `json:"patch"`
	PatchHash string  `json:"patch_hash"`
	DT        float64 `json:"dt"`
	Ticks     int64   `json:"ticks"`
	StartedAt string  `json:"started_at"`
}

// TraceSample is one stored value with its node name resolved.
type TraceSample struct {
	Tick  int64   `json:"tick"`
	Time  float64 `json:"time"`
	Node  string  `json:"node"`
	Port  string  `json:"port"`
	Value float64 `json:"value"`
}

// TraceResult holds the trace of one run.
type TraceResult struct {
	Run      RunInfo               `json:"run"`
	Samples  []TraceSample         `json:"samples"`
	Degraded []store.DegradedEvent `json:"degraded,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show stored samples of a run",
		Long: `Read the samples a run logged with run --db.

Without --run, lists the stored runs. Samples are ordered by tick, then
node id, then port name.

Examples:
  patchbay trace --db runs.db
  patchbay trace --db runs.db --run 0190... --node integ --port out
  patchbay trace --db runs.db --run 0190... --from 10 --to 20 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only this node (name or id)")
	cmd.Flags().StringVar(&opts.Port, "port", "", "only this port")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first tick")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last tick (0 = end)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, f, st)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = f.Error("E404", fmt.Sprintf("run %s not found", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	names := make(map[graph.NodeID]string, len(run.Patch.Nodes))
	for _, n := range run.Patch.Nodes {
		names[graph.NodeID(n.ID)] = n.Name
	}

	filter := store.TraceFilter{Port: opts.Port, FromTick: opts.From, ToTick: opts.To}
	if opts.Node != "" {
		if n, ok := run.Patch.NodeByName(opts.Node); ok {
			filter.Node = graph.NodeID(n.ID)
		} else if id, err := strconv.ParseInt(opts.Node, 10, 64); err == nil {
			filter.Node = graph.NodeID(id)
		} else {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown node %q in run %s", opts.Node, run.ID))
		}
	}

	samples, err := st.ReadTrace(ctx, run.ID, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	degraded, err := st.ReadDegraded(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read degraded events", err)
	}

	result := TraceResult{Run: runInfo(run), Samples: make([]TraceSample, len(samples)), Degraded: degraded}
	for i, s := range samples {
		name, ok := names[s.Node]
		if !ok {
			name = strconv.FormatInt(int64(s.Node), 10)
		}
		result.Samples[i] = TraceSample{Tick: s.Tick, Time: s.Time, Node: name, Port: s.Port, Value: s.Value}
	}

	if f.JSON() {
		return f.Encode(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	return outputTraceText(f, result)
}

func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:        r.ID,
		Patch:     r.PatchName,
		PatchHash: r.PatchHash,
		DT:        r.DT,
		Ticks:     r.Ticks,
		StartedAt: r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func listRuns(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = runInfo(r)
	}

	if f.JSON() {
		return f.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(f.Writer, "No runs stored.")
		return nil
	}
	for _, r := range infos {
		fmt.Fprintf(f.Writer, "%s  %-16s %6d ticks  dt %g  %s\n", r.ID, r.Patch, r.Ticks, r.DT, r.StartedAt)
	}
	return nil
}

func outputTraceText(f *OutputFormatter, result TraceResult) error {
	w := f.Writer
	r := result.Run
	fmt.Fprintf(w, "Run %s (%s, %d ticks, dt %g)\n\n", r.ID, r.Patch, r.Ticks, r.DT)

	if len(result.Samples) == 0 {
		fmt.Fprintln(w, "No samples match.")
	}
	for _, s := range result.Samples {
		fmt.Fprintf(w, "  tick=%d time=%g %s.%s=%g\n", s.Tick, s.Time, s.Node, s.Port, s.Value)
	}
	if len(result.Degraded) > 0 {
		fmt.Fprintf(w, "\nDegraded (%d):\n", len(result.Degraded))
		for _, d := range result.Degraded {
			fmt.Fprintf(w, "  tick=%d %s: %s\n", d.Tick, d.Name, d.Error)
		}
	}
	return nil
}
