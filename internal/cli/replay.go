package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/patchbay/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult is the replay outcome of one run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Patch         string `json:"patch"`
	Ticks         int64  `json:"ticks"`
	Deterministic bool   `json:"deterministic"`
	Divergence    string `json:"divergence,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run stored runs and verify determinism",
		Long: `Rebuild the patch of each stored run, run it again from its initial
conditions with the same dt, tick count and injections, and compare every
sample with the stored trace bit for bit.

Exit codes:
  0 - All runs reproduced exactly
  1 - A run diverged
  2 - Command error (database not found, unknown run, etc.)

Examples:
  patchbay replay --db runs.db
  patchbay replay --db runs.db --run 0190...
  patchbay replay --db runs.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var runs []store.Run
	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			_ = f.Error("E404", fmt.Sprintf("run %s not found", opts.RunID), nil)
			return WrapExitError(ExitCommandError, "run not found", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		runs = []store.Run{run}
	} else if runs, err = st.ListRuns(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	result := ReplayResult{Runs: make([]ReplayRunResult, 0, len(runs)), TotalRuns: len(runs), AllDeterministic: true}
	for _, run := range runs {
		f.VerboseLog("replaying %s (%s, %d ticks)", run.ID, run.PatchName, run.Ticks)
		rr, err := st.Replay(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", run.ID), err)
		}
		r := ReplayRunResult{RunID: run.ID, Patch: run.PatchName, Ticks: rr.Ticks, Deterministic: rr.Divergence == nil}
		if rr.Divergence != nil {
			r.Divergence = rr.Divergence.Error()
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, r)
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.AllDeterministic {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_NONDETERMINISTIC", Message: "replay diverged from the stored trace"}
		}
		if err := f.Encode(resp); err != nil {
			return err
		}
	} else {
		outputReplayText(f, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from the stored trace")
	}
	return nil
}

func outputReplayText(f *OutputFormatter, result ReplayResult) {
	w := f.Writer
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return
	}
	for _, r := range result.Runs {
		if r.Deterministic {
			fmt.Fprintf(w, "✓ %s (%s, %d ticks)\n", r.RunID, r.Patch, r.Ticks)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s, %d ticks)\n  %s\n", r.RunID, r.Patch, r.Ticks, r.Divergence)
	}
	fmt.Fprintln(w)
	if result.AllDeterministic {
		fmt.Fprintf(w, "✓ All %d run(s) replayed identically\n", result.TotalRuns)
	}
}
