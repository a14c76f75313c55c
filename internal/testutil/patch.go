// Package testutil holds builders shared by tests across packages.
package testutil

import (
	"strings"
	"testing"

	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/node"
)

// Patch builds a graph by node name, failing the test on any error.
//
//	p := testutil.NewPatch(t)
//	p.Node("a", node.KindConstant, testutil.Params{"value": 5})
//	p.Node("sum", node.KindSum, nil)
//	p.Connect("a.out", "sum.a")
type Patch struct {
	t     testing.TB
	Graph *graph.Graph
	ids   map[string]graph.NodeID
}

// Params is shorthand for node parameters.
type Params map[string]float64

// NewPatch creates an empty patch builder.
func NewPatch(t testing.TB) *Patch {
	return &Patch{t: t, Graph: graph.New(), ids: make(map[string]graph.NodeID)}
}

// Node adds a built-in node with default ports.
func (p *Patch) Node(name string, kind node.Kind, params Params) graph.NodeID {
	p.t.Helper()
	return p.NodeWith(name, kind, node.Config{Params: params})
}

// NodeWith adds a node from a full config.
func (p *Patch) NodeWith(name string, kind node.Kind, cfg node.Config) graph.NodeID {
	p.t.Helper()
	b, err := node.New(kind, cfg)
	if err != nil {
		p.t.Fatalf("build %s node %q: %v", kind, name, err)
	}
	id, err := p.Graph.AddNode(name, b)
	if err != nil {
		p.t.Fatalf("add node %q: %v", name, err)
	}
	p.ids[name] = id
	return id
}

// Formula adds a formula node.
func (p *Patch) Formula(name string, inputs, outputs []string, source string) graph.NodeID {
	p.t.Helper()
	return p.NodeWith(name, node.KindFormula, node.Config{Inputs: inputs, Outputs: outputs, Formula: source})
}

// Connect wires "node.port" to "node.port".
func (p *Patch) Connect(from, to string) graph.ConnectionID {
	p.t.Helper()
	src, srcPort := p.split(from)
	dst, dstPort := p.split(to)
	id, err := p.Graph.Connect(src, srcPort, dst, dstPort)
	if err != nil {
		p.t.Fatalf("connect %s -> %s: %v", from, to, err)
	}
	return id
}

// ID returns the id of a named node.
func (p *Patch) ID(name string) graph.NodeID {
	p.t.Helper()
	id, ok := p.ids[name]
	if !ok {
		p.t.Fatalf("no node named %q", name)
	}
	return id
}

func (p *Patch) split(ref string) (graph.NodeID, string) {
	p.t.Helper()
	name, port, ok := strings.Cut(ref, ".")
	if !ok {
		p.t.Fatalf("endpoint %q is not node.port", ref)
	}
	return p.ID(name), port
}

// FixedRunID returns the same run id every time, so golden traces do not
// depend on generated ids.
type FixedRunID string

// Generate implements engine.RunIDGenerator.
func (f FixedRunID) Generate() string {
	if f == "" {
		return "test-run"
	}
	return string(f)
}
