package engine

import (
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/history"
	"github.com/roach88/patchbay/internal/node"
)

// PortValue is a named port value in a snapshot.
type PortValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// NodeSnapshot is a copy of one node's observable state.
type NodeSnapshot struct {
	ID       graph.NodeID `json:"id"`
	Name     string       `json:"name"`
	Kind     node.Kind    `json:"kind"`
	Inputs   []PortValue  `json:"inputs"`
	Outputs  []PortValue  `json:"outputs"`
	Degraded Degradation  `json:"degraded"`
}

// Snapshot is a consistent copy of the engine's observable state.
type Snapshot struct {
	RunID string         `json:"run_id"`
	State string         `json:"state"`
	Tick  int64          `json:"tick"`
	Time  float64        `json:"time"`
	DT    float64        `json:"dt"`
	Nodes []NodeSnapshot `json:"nodes"`
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// RunID returns the id of the current run.
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// Time returns the simulated time.
func (e *Engine) Time() float64 { return e.clock.Time() }

// Ticks returns the number of ticks since the last reset.
func (e *Engine) Ticks() int64 { return e.clock.Ticks() }

// DT returns the step length.
func (e *Engine) DT() float64 { return e.clock.DT() }

// HistoryCapacity returns the samples kept per output port.
func (e *Engine) HistoryCapacity() int { return e.history.Capacity() }

// PortValue returns the current value of any port.
func (e *Engine) PortValue(id graph.NodeID, port string) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.graph.Port(graph.Endpoint{Node: id, Port: port})
	if err != nil {
		return 0, err
	}
	return p.Value, nil
}

// History returns the recorded samples of an output port, oldest first.
func (e *Engine) History(id graph.NodeID, port string) ([]history.Sample, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.graph.Port(graph.Endpoint{Node: id, Port: port})
	if err != nil {
		return nil, err
	}
	if p.Direction != graph.Output {
		return nil, &graph.Error{Code: graph.CodeWrongDirection, Message: "history is kept for output ports", Node: id, Port: port}
	}
	return e.history.Snapshot(int64(id), port), nil
}

// Degraded returns the compute-failure record of a node.
func (e *Engine) Degraded(id graph.NodeID) Degradation {
	return e.degraded.Get(id)
}

// DegradedTotal returns failed computes summed over all nodes.
func (e *Engine) DegradedTotal() uint64 {
	return e.degraded.Total()
}

// Snapshot copies the whole observable state under one read lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		RunID: e.runID,
		State: e.state.String(),
		Tick:  e.clock.Ticks(),
		Time:  e.clock.Time(),
		DT:    e.clock.DT(),
	}
	for _, n := range e.graph.Nodes() {
		ns := NodeSnapshot{
			ID:       n.ID,
			Name:     n.Name,
			Kind:     n.Kind(),
			Inputs:   portValues(n.Inputs),
			Outputs:  portValues(n.Outputs),
			Degraded: e.degraded.Get(n.ID),
		}
		snap.Nodes = append(snap.Nodes, ns)
	}
	return snap
}

func portValues(ports []*graph.Port) []PortValue {
	out := make([]PortValue, len(ports))
	for i, p := range ports {
		out[i] = PortValue{Name: p.Name, Value: p.Value}
	}
	return out
}

// View runs fn with read access to the graph. fn must not mutate it or
// keep references past its return.
func (e *Engine) View(fn func(g *graph.Graph)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.graph)
}
