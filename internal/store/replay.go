package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/patchbay/internal/engine"
)

// ReplayResult is the outcome of re-running a stored run.
type ReplayResult struct {
	RunID string
	Ticks int64
	// Divergence is nil when the fresh run matched the stored trace.
	Divergence *engine.Divergence
}

// Replay rebuilds the patch of a stored run, runs it from reset for the
// stored number of ticks with the stored injections, and compares the
// fresh samples with the stored ones bit for bit. The fresh run is not
// written to the store.
func (s *Store) Replay(ctx context.Context, runID string) (ReplayResult, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	stored, err := s.ReadReports(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	injections, err := s.ReadInjections(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	e, err := run.Patch.NewEngine(engine.WithDT(run.DT), engine.WithRunIDs(engine.NewFixedGenerator(runID)))
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: rebuild patch: %w", err)
	}
	reports, err := e.Script(ctx, int(run.Ticks), injections)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	fresh := normalize(reports)

	result := ReplayResult{RunID: runID, Ticks: run.Ticks}
	if err := engine.CompareReports(stored, fresh); err != nil {
		var d *engine.Divergence
		if !errors.As(err, &d) {
			return ReplayResult{}, err
		}
		result.Divergence = d
	}
	return result, nil
}

// normalize puts engine reports in the shape ReadReports returns: ticks
// without samples dropped, samples sorted by node id and port name, and
// negative zero read back as zero, which is how SQLite stores it.
func normalize(reports []engine.TickReport) []engine.TickReport {
	out := make([]engine.TickReport, 0, len(reports))
	for _, r := range reports {
		if len(r.Samples) == 0 {
			continue
		}
		samples := slices.Clone(r.Samples)
		slices.SortFunc(samples, func(a, b engine.PortSample) int {
			if c := cmp.Compare(a.Node, b.Node); c != 0 {
				return c
			}
			return cmp.Compare(a.Port, b.Port)
		})
		for i := range samples {
			if samples[i].Value == 0 {
				samples[i].Value = 0
			}
		}
		r.Samples = samples
		out = append(out, r)
	}
	return out
}
