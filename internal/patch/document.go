package patch

import (
	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/node"
)

// Document is a serialisable patch.
type Document struct {
	Name            string           `json:"name" yaml:"name"`
	DT              float64          `json:"dt" yaml:"dt"`
	HistoryCapacity int              `json:"history_capacity,omitempty" yaml:"history_capacity,omitempty"`
	Nodes           []NodeSpec       `json:"nodes" yaml:"nodes"`
	Connections     []ConnectionSpec `json:"connections" yaml:"connections"`
}

// NodeSpec describes one node.
type NodeSpec struct {
	ID      int64              `json:"id" yaml:"id"`
	Name    string             `json:"name" yaml:"name"`
	Kind    node.Kind          `json:"kind" yaml:"kind"`
	Params  map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Inputs  []string           `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string           `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Formula string             `json:"formula,omitempty" yaml:"formula,omitempty"`
}

// Config returns the behaviour config of the node.
func (n NodeSpec) Config() node.Config {
	return node.Config{Params: n.Params, Inputs: n.Inputs, Outputs: n.Outputs, Formula: n.Formula}
}

// ConnectionSpec describes one connection.
type ConnectionSpec struct {
	ID   int64          `json:"id" yaml:"id"`
	From graph.Endpoint `json:"from" yaml:"from"`
	To   graph.Endpoint `json:"to" yaml:"to"`
}

// FromGraph captures g as a Document. Nodes and connections are listed in
// ascending id order.
func FromGraph(name string, g *graph.Graph, dt float64, historyCapacity int) *Document {
	doc := &Document{
		Name:            name,
		DT:              dt,
		HistoryCapacity: historyCapacity,
		Nodes:           []NodeSpec{},
		Connections:     []ConnectionSpec{},
	}
	for _, n := range g.Nodes() {
		cfg := n.Behavior.Config()
		if len(cfg.Params) == 0 {
			cfg.Params = nil
		}
		doc.Nodes = append(doc.Nodes, NodeSpec{
			ID:      int64(n.ID),
			Name:    n.Name,
			Kind:    n.Kind(),
			Params:  cfg.Params,
			Inputs:  cfg.Inputs,
			Outputs: cfg.Outputs,
			Formula: cfg.Formula,
		})
	}
	for _, c := range g.Connections() {
		doc.Connections = append(doc.Connections, ConnectionSpec{ID: int64(c.ID), From: c.From, To: c.To})
	}
	return doc
}

// FromEngine captures the graph and settings of a running engine.
func FromEngine(name string, e *engine.Engine) *Document {
	var doc *Document
	e.View(func(g *graph.Graph) {
		doc = FromGraph(name, g, e.DT(), e.HistoryCapacity())
	})
	return doc
}

// Options returns the engine options the Document declares.
func (d *Document) Options() []engine.Option {
	var opts []engine.Option
	if d.DT != 0 {
		opts = append(opts, engine.WithDT(d.DT))
	}
	if d.HistoryCapacity > 0 {
		opts = append(opts, engine.WithHistoryCapacity(d.HistoryCapacity))
	}
	return opts
}

// NewEngine builds the Document's graph and an engine to drive it. Extra
// options are applied after the Document's own.
func (d *Document) NewEngine(opts ...engine.Option) (*engine.Engine, error) {
	g, err := Build(d)
	if err != nil {
		return nil, err
	}
	return engine.New(g, append(d.Options(), opts...)...)
}

// NodeByName returns the first node with the given name.
func (d *Document) NodeByName(name string) (NodeSpec, bool) {
	for _, n := range d.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeSpec{}, false
}
