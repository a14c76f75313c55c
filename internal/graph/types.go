package graph

import (
	"fmt"

	"github.com/roach88/patchbay/internal/node"
)

// NodeID identifies a node. Ids are assigned in ascending order and are
// never reused within a graph.
type NodeID int64

// ConnectionID identifies a connection.
type ConnectionID int64

// Direction says whether a port receives or emits values.
type Direction int

const (
	Input Direction = iota + 1
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Port is a named terminal on a node.
//
// An input's Value is the fan-in sum of its incoming connections for the
// current tick. An output's Value is written only by its node's compute step.
type Port struct {
	Node      NodeID
	Name      string
	Direction Direction
	Value     float64
}

// Node is a vertex of the graph. Port order is the order the node was
// declared with.
type Node struct {
	ID       NodeID
	Name     string
	Inputs   []*Port
	Outputs  []*Port
	Behavior node.Behavior
}

// Kind returns the behaviour kind.
func (n *Node) Kind() node.Kind { return n.Behavior.Kind() }

// Stateful reports whether consumers read this node's outputs one tick late.
func (n *Node) Stateful() bool { return n.Behavior.Stateful() }

// Input returns the named input port, or nil.
func (n *Node) Input(name string) *Port { return findPort(n.Inputs, name) }

// Output returns the named output port, or nil.
func (n *Node) Output(name string) *Port { return findPort(n.Outputs, name) }

// Port returns the named port in either direction, or nil.
func (n *Node) Port(name string) *Port {
	if p := n.Input(name); p != nil {
		return p
	}
	return n.Output(name)
}

func findPort(ports []*Port, name string) *Port {
	for _, p := range ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Endpoint addresses one port of one node.
type Endpoint struct {
	Node NodeID `json:"node" yaml:"node"`
	Port string `json:"port" yaml:"port"`
}

func (e Endpoint) String() string { return fmt.Sprintf("%d.%s", e.Node, e.Port) }

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	ID   ConnectionID
	From Endpoint
	To   Endpoint
}
