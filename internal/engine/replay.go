package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/patchbay/internal/graph"
)

// Divergence is the first difference found between two runs of a patch.
type Divergence struct {
	Tick   int64
	Node   graph.NodeID
	Port   string
	Want   float64
	Got    float64
	Reason string
}

// Error implements the error interface.
func (d *Divergence) Error() string {
	if d.Port != "" {
		return fmt.Sprintf("runs diverge at tick %d, %d.%s: want %v, got %v", d.Tick, d.Node, d.Port, d.Want, d.Got)
	}
	return fmt.Sprintf("runs diverge at tick %d: %s", d.Tick, d.Reason)
}

// CompareReports checks two runs sample for sample. Values must match bit
// for bit; a determinism check has no tolerance. Run ids and wall-clock
// durations are ignored.
func CompareReports(want, got []TickReport) error {
	if len(want) != len(got) {
		return &Divergence{Reason: fmt.Sprintf("tick count %d != %d", len(want), len(got))}
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Tick != g.Tick || math.Float64bits(w.Time) != math.Float64bits(g.Time) {
			return &Divergence{Tick: w.Tick, Reason: fmt.Sprintf("tick/time (%d, %v) != (%d, %v)", w.Tick, w.Time, g.Tick, g.Time)}
		}
		if len(w.Samples) != len(g.Samples) {
			return &Divergence{Tick: w.Tick, Reason: fmt.Sprintf("sample count %d != %d", len(w.Samples), len(g.Samples))}
		}
		for j := range w.Samples {
			ws, gs := w.Samples[j], g.Samples[j]
			if ws.Node != gs.Node || ws.Port != gs.Port {
				return &Divergence{Tick: w.Tick, Reason: fmt.Sprintf("sample %d is %d.%s, want %d.%s", j, gs.Node, gs.Port, ws.Node, ws.Port)}
			}
			if math.Float64bits(ws.Value) != math.Float64bits(gs.Value) {
				return &Divergence{Tick: w.Tick, Node: ws.Node, Port: ws.Port, Want: ws.Value, Got: gs.Value}
			}
		}
	}
	return nil
}

// Rerun stops the engine, which resets it, and then ticks it n times. It
// returns the reports of the fresh run.
func (e *Engine) Rerun(ctx context.Context, n int) []TickReport {
	e.Stop()
	return e.TickN(ctx, n)
}

// VerifyDeterminism runs the engine twice from reset for n ticks and
// compares the two runs.
func (e *Engine) VerifyDeterminism(ctx context.Context, n int) error {
	first := e.Rerun(ctx, n)
	second := e.Rerun(ctx, n)
	return CompareReports(first, second)
}
