package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/patch"
	"github.com/roach88/patchbay/internal/store"
	"github.com/roach88/patchbay/internal/testutil"
)

// Harness holds what one scenario run needs.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	doc    *patch.Document
	logger *slog.Logger

	// names and ids of the patch's nodes, resolved once
	ids   map[string]graph.NodeID
	names map[graph.NodeID]string
}

// Run executes a scenario and returns its result. An error means the
// scenario could not run at all (bad patch, unknown port); failed
// assertions are reported in the result.
//
// Each scenario runs in a fresh in-memory database with a fixed run id.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	doc, err := patch.LoadFile(scenario.PatchPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load patch: %w", err)
	}
	if scenario.DT != 0 {
		doc.DT = scenario.DT
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		doc:    doc,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	runLog := store.NewRunLog(st, doc)
	eng, err := doc.NewEngine(
		engine.WithRunIDs(testutil.FixedRunID(scenario.RunID)),
		engine.WithObserver(runLog),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build patch: %w", err)
	}
	defer eng.Close()
	h.engine = eng
	h.indexNodes()

	injections, err := h.injections(scenario.Inject)
	if err != nil {
		return nil, err
	}
	runLog.WithInjections(injections)

	probes, err := h.probes(scenario.Probes)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	reports, err := eng.Script(ctx, scenario.Ticks, injections)
	if err != nil {
		return nil, fmt.Errorf("failed to drive patch: %w", err)
	}

	result := NewResult()
	result.RunID = eng.RunID()
	result.Ticks = eng.Ticks()
	for _, r := range reports {
		result.Trace = append(result.Trace, h.traceTick(r, probes)...)
	}
	for id, name := range h.names {
		if d := eng.Degraded(id); d.Count > 0 {
			result.Degraded[name] = d.Count
		}
	}

	h.logger.Info("scenario ran",
		"scenario", scenario.Name,
		"run_id", result.RunID,
		"ticks", result.Ticks,
		"elapsed", time.Since(started),
	)

	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  st,
		Engine: eng,
		Lookup: h.lookup,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) indexNodes() {
	h.ids = make(map[string]graph.NodeID)
	h.names = make(map[graph.NodeID]string)
	h.engine.View(func(g *graph.Graph) {
		for _, n := range g.Nodes() {
			if _, dup := h.ids[n.Name]; !dup {
				h.ids[n.Name] = n.ID
			}
			h.names[n.ID] = n.Name
		}
	})
}

// lookup resolves node.port to an endpoint.
func (h *Harness) lookup(ref string) (graph.Endpoint, error) {
	name, port := splitPortRef(ref)
	id, ok := h.ids[name]
	if !ok {
		return graph.Endpoint{}, fmt.Errorf("unknown node %q", name)
	}
	ep := graph.Endpoint{Node: id, Port: port}
	var err error
	h.engine.View(func(g *graph.Graph) {
		_, err = g.Port(ep)
	})
	if err != nil {
		return graph.Endpoint{}, fmt.Errorf("%s: %w", ref, err)
	}
	return ep, nil
}

func (h *Harness) injections(steps []InjectStep) ([]engine.Injection, error) {
	out := make([]engine.Injection, 0, len(steps))
	for i, step := range steps {
		ep, err := h.lookup(step.Port)
		if err != nil {
			return nil, fmt.Errorf("inject[%d]: %w", i, err)
		}
		out = append(out, engine.Injection{At: step.At, Node: ep.Node, Port: ep.Port, Value: step.Value})
	}
	return out, nil
}

func (h *Harness) probes(refs []string) ([]graph.Endpoint, error) {
	if len(refs) == 0 {
		var all []graph.Endpoint
		h.engine.View(func(g *graph.Graph) {
			for _, n := range g.Nodes() {
				for _, p := range n.Outputs {
					all = append(all, graph.Endpoint{Node: n.ID, Port: p.Name})
				}
			}
		})
		return all, nil
	}

	out := make([]graph.Endpoint, 0, len(refs))
	for i, ref := range refs {
		ep, err := h.lookup(ref)
		if err != nil {
			return nil, fmt.Errorf("probes[%d]: %w", i, err)
		}
		out = append(out, ep)
	}
	return out, nil
}

func (h *Harness) traceTick(r engine.TickReport, probes []graph.Endpoint) []TraceEvent {
	values := make(map[graph.Endpoint]float64, len(r.Samples))
	for _, s := range r.Samples {
		values[graph.Endpoint{Node: s.Node, Port: s.Port}] = s.Value
	}
	events := make([]TraceEvent, 0, len(probes))
	for _, ep := range probes {
		v, ok := values[ep]
		if !ok {
			continue
		}
		events = append(events, TraceEvent{
			Tick:  r.Tick,
			Time:  r.Time,
			Node:  h.names[ep.Node],
			Port:  ep.Port,
			Value: v,
		})
	}
	return events
}
