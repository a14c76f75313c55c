package engine

import (
	"sync"

	"github.com/roach88/patchbay/internal/graph"
)

// Degradation is the compute-error record of one node.
type Degradation struct {
	Count     uint64 `json:"count"`
	LastTick  int64  `json:"last_tick"`
	LastError string `json:"last_error,omitempty"`
}

// DegradedTracker counts, per node, the ticks on which compute failed.
//
// A failing node outputs 0.0 for that tick and the simulation goes on;
// the counter is how the failure stays visible.
//
// Thread-safe: Can be called concurrently.
type DegradedTracker struct {
	mu    sync.Mutex
	nodes map[graph.NodeID]*Degradation
}

// NewDegradedTracker creates an empty tracker.
func NewDegradedTracker() *DegradedTracker {
	return &DegradedTracker{nodes: make(map[graph.NodeID]*Degradation)}
}

// Record notes a failed compute of node on the given tick.
func (d *DegradedTracker) Record(node graph.NodeID, tick int64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.nodes[node]
	if !ok {
		rec = &Degradation{}
		d.nodes[node] = rec
	}
	rec.Count++
	rec.LastTick = tick
	rec.LastError = err.Error()
}

// Get returns a copy of a node's record; the zero value if it never failed.
func (d *DegradedTracker) Get(node graph.NodeID) Degradation {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.nodes[node]; ok {
		return *rec
	}
	return Degradation{}
}

// Total returns the failed compute count summed over all nodes.
func (d *DegradedTracker) Total() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var total uint64
	for _, rec := range d.nodes {
		total += rec.Count
	}
	return total
}

// Forget drops a node's record.
func (d *DegradedTracker) Forget(node graph.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.nodes, node)
}

// Clear drops every record.
func (d *DegradedTracker) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = make(map[graph.NodeID]*Degradation)
}
