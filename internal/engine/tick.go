package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/patchbay/internal/graph"
)

// Tick advances the simulation by exactly one step, regardless of state.
// It is the primitive behind both Step and the Run loop.
//
// Order of work:
//  1. apply deferred mutations
//  2. zero every input accumulator
//  3. for each node in evaluation order: sum incoming connections (plus
//     injections) into its inputs, compute, write outputs
//  4. record every output at time+dt, advance the clock
//  5. notify observers
//
// A connection from a stateful node delivers that node's output as it was
// at the start of the tick; any other connection delivers the source's
// current value, which is this tick's value when the source ran earlier in
// the order and last tick's value otherwise.
func (e *Engine) Tick(ctx context.Context) TickReport {
	e.mu.Lock()
	report := e.tickLocked()
	e.mu.Unlock()

	e.notify(ctx, report)
	return report
}

func (e *Engine) tickLocked() TickReport {
	started := time.Now()
	e.applyPendingLocked()
	order, incoming := e.evaluationOrderLocked()

	nodes := e.graph.Nodes()
	held := make(map[graph.Endpoint]float64)
	for _, n := range nodes {
		for _, p := range n.Inputs {
			p.Value = 0
		}
		if n.Stateful() {
			for _, p := range n.Outputs {
				held[graph.Endpoint{Node: n.ID, Port: p.Name}] = p.Value
			}
		}
	}

	dt, now := e.clock.DT(), e.clock.Time()
	tick := e.clock.Ticks() + 1
	report := TickReport{RunID: e.runID, Tick: tick, Nodes: len(nodes)}

	for _, id := range order {
		n, _ := e.graph.Node(id)
		e.gatherLocked(n, incoming[id], held)

		inputs := make(map[string]float64, len(n.Inputs))
		for _, p := range n.Inputs {
			inputs[p.Name] = p.Value
		}

		out, err := compute(n, dt, now, inputs)
		if err != nil {
			e.degraded.Record(id, tick, err)
			report.Degraded = append(report.Degraded, DegradedNode{Node: id, Name: n.Name, Error: err.Error()})
			slog.Debug("node compute failed",
				"node", id,
				"name", n.Name,
				"kind", string(n.Kind()),
				"tick", tick,
				"error", err,
			)
			out = nil
		}
		for _, p := range n.Outputs {
			p.Value = out[p.Name]
		}
	}
	clear(e.injected)

	_, t := e.clock.Advance()
	report.Time = t
	for _, n := range nodes {
		for _, p := range n.Outputs {
			e.history.Record(int64(n.ID), p.Name, t, p.Value)
			report.Samples = append(report.Samples, PortSample{Node: n.ID, Port: p.Name, Value: p.Value})
		}
	}
	report.Elapsed = time.Since(started)
	return report
}

// gatherLocked fills a node's input ports with the fan-in sum of its
// connections plus any injection.
func (e *Engine) gatherLocked(n *graph.Node, in []graph.Connection, held map[graph.Endpoint]float64) {
	for _, c := range in {
		dst := n.Input(c.To.Port)
		if v, ok := held[c.From]; ok {
			dst.Value += v
			continue
		}
		src, _ := e.graph.Node(c.From.Node)
		dst.Value += src.Output(c.From.Port).Value
	}
	for _, p := range n.Inputs {
		if v, ok := e.injected[graph.Endpoint{Node: n.ID, Port: p.Name}]; ok {
			p.Value += v
		}
	}
}

// compute runs a node's behaviour, turning panics and non-finite outputs
// into errors.
func compute(n *graph.Node, dt, now float64, inputs map[string]float64) (out map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("compute panicked: %v", r)
		}
	}()

	out, err = n.Behavior.Compute(dt, now, inputs)
	if err != nil {
		return nil, err
	}
	for _, p := range n.Outputs {
		if v := out[p.Name]; math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("output %s is not finite (%g)", p.Name, v)
		}
	}
	return out, nil
}

// evaluationOrderLocked returns the flattened evaluation order and the
// incoming connections per node, rebuilt only when the graph changed.
func (e *Engine) evaluationOrderLocked() ([]graph.NodeID, map[graph.NodeID][]graph.Connection) {
	if e.orderValid && e.orderVersion == e.graph.Version() {
		return e.order, e.incoming
	}

	batches := e.graph.EvaluationOrder()
	if len(batches.Cyclic) > 0 {
		slog.Debug("stateless cycle evaluated in id order", "nodes", batches.Cyclic, "run_id", e.runID)
	}
	e.order = batches.Flatten()
	e.incoming = make(map[graph.NodeID][]graph.Connection, len(e.order))
	for _, c := range e.graph.Connections() {
		e.incoming[c.To.Node] = append(e.incoming[c.To.Node], c)
	}
	e.orderVersion = e.graph.Version()
	e.orderValid = true
	return e.order, e.incoming
}

// notify delivers a report to every observer. Observer failures are
// logged and do not stop the simulation.
func (e *Engine) notify(ctx context.Context, report TickReport) {
	e.mu.RLock()
	observers := e.observers
	e.mu.RUnlock()

	for _, o := range observers {
		if err := o.TickCompleted(ctx, report); err != nil {
			slog.Error("tick observer failed",
				"run_id", report.RunID,
				"tick", report.Tick,
				"error", err,
			)
		}
	}
}

// Step runs exactly one tick and leaves the engine Paused. Allowed from
// Idle, Paused and Stopped.
func (e *Engine) Step(ctx context.Context) (TickReport, error) {
	e.mu.Lock()
	if e.state == Running {
		st := e.state
		e.mu.Unlock()
		return TickReport{}, NewTransitionError("step", st)
	}
	report := e.tickLocked()
	e.setState(Paused)
	e.mu.Unlock()

	e.notify(ctx, report)
	return report, nil
}

// TickN runs n ticks via Tick and returns their reports.
func (e *Engine) TickN(ctx context.Context, n int) []TickReport {
	reports := make([]TickReport, 0, n)
	for i := 0; i < n; i++ {
		reports = append(reports, e.Tick(ctx))
	}
	return reports
}
