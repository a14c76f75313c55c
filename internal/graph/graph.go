package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/patchbay/internal/node"
)

// Graph is an arena of nodes keyed by id plus a flat list of connections.
//
// Every mutating method either succeeds completely or returns a structural
// *Error and leaves the graph untouched. Graph is not safe for concurrent
// use; the engine serialises access.
type Graph struct {
	nodes    map[NodeID]*Node
	conns    []Connection // ascending ID
	nextNode NodeID
	nextConn ConnectionID
	version  uint64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[NodeID]*Node),
		conns:    make([]Connection, 0, 16),
		nextNode: 1,
		nextConn: 1,
	}
}

// Version increases on every successful mutation.
func (g *Graph) Version() uint64 { return g.version }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// AddNode adds a node whose ports are those declared by its behaviour.
func (g *Graph) AddNode(name string, b node.Behavior) (NodeID, error) {
	n, err := buildNode(g.nextNode, name, b)
	if err != nil {
		return 0, err
	}
	g.nodes[n.ID] = n
	g.nextNode++
	g.version++
	return n.ID, nil
}

// Restore adds a node under a caller-chosen id. Used to rebuild a saved
// graph with its original ids; later AddNode calls continue above the
// highest id seen.
func (g *Graph) Restore(id NodeID, name string, b node.Behavior) error {
	if id <= 0 {
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("node id %d is not positive", id)}
	}
	if _, exists := g.nodes[id]; exists {
		return &Error{Code: CodeDuplicateID, Message: "node id already in use", Node: id}
	}
	n, err := buildNode(id, name, b)
	if err != nil {
		return err
	}
	g.nodes[id] = n
	if id >= g.nextNode {
		g.nextNode = id + 1
	}
	g.version++
	return nil
}

func buildNode(id NodeID, name string, b node.Behavior) (*Node, error) {
	if b == nil {
		return nil, &Error{Code: CodeInvalidConfig, Message: "node has no behaviour"}
	}
	inputs, outputs := b.Ports()
	if err := checkPortNames(inputs, outputs); err != nil {
		return nil, err
	}
	n := &Node{ID: id, Name: name, Behavior: b}
	for _, p := range inputs {
		n.Inputs = append(n.Inputs, &Port{Node: id, Name: p, Direction: Input})
	}
	for _, p := range outputs {
		n.Outputs = append(n.Outputs, &Port{Node: id, Name: p, Direction: Output})
	}
	return n, nil
}

// checkPortNames enforces unique, non-empty names across both directions.
func checkPortNames(inputs, outputs []string) error {
	seen := make(map[string]bool, len(inputs)+len(outputs))
	for _, name := range slices.Concat(inputs, outputs) {
		if strings.TrimSpace(name) == "" {
			return &Error{Code: CodeInvalidPortName, Message: "port name must be non-empty"}
		}
		if seen[name] {
			return &Error{Code: CodeDuplicatePortName, Message: "port name declared twice", Port: name}
		}
		seen[name] = true
	}
	return nil
}

// RemoveNode deletes a node and every connection touching it.
func (g *Graph) RemoveNode(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return notFound("node", int64(id))
	}
	delete(g.nodes, id)
	g.conns = slices.DeleteFunc(g.conns, func(c Connection) bool {
		return c.From.Node == id || c.To.Node == id
	})
	g.version++
	return nil
}

// Rename changes a node's display name.
func (g *Graph) Rename(id NodeID, name string) error {
	n, ok := g.nodes[id]
	if !ok {
		return notFound("node", int64(id))
	}
	n.Name = name
	g.version++
	return nil
}

// Reconfigure replaces a node's behaviour and port sets in one step.
//
// Connections attached to ports that still exist with the same direction
// are kept; all others touching the node are detached. Ports that survive
// keep their current value.
func (g *Graph) Reconfigure(id NodeID, b node.Behavior) error {
	old, ok := g.nodes[id]
	if !ok {
		return notFound("node", int64(id))
	}
	n, err := buildNode(id, old.Name, b)
	if err != nil {
		return err
	}
	for _, p := range slices.Concat(n.Inputs, n.Outputs) {
		if prev := old.Port(p.Name); prev != nil && prev.Direction == p.Direction {
			p.Value = prev.Value
		}
	}

	g.conns = slices.DeleteFunc(g.conns, func(c Connection) bool {
		if c.From.Node == id && n.Output(c.From.Port) == nil {
			return true
		}
		return c.To.Node == id && n.Input(c.To.Port) == nil
	})
	g.nodes[id] = n
	g.version++
	return nil
}

// Connect adds a connection from an output port to an input port.
// Node-level cycles are allowed; duplicate pairs are not.
func (g *Graph) Connect(srcNode NodeID, srcPort string, dstNode NodeID, dstPort string) (ConnectionID, error) {
	from, to := Endpoint{srcNode, srcPort}, Endpoint{dstNode, dstPort}
	if err := g.checkConnection(from, to); err != nil {
		return 0, err
	}
	id := g.nextConn
	g.conns = append(g.conns, Connection{ID: id, From: from, To: to})
	g.nextConn++
	g.version++
	return id, nil
}

// RestoreConnection adds a connection under a caller-chosen id.
func (g *Graph) RestoreConnection(id ConnectionID, from, to Endpoint) error {
	if id <= 0 {
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("connection id %d is not positive", id)}
	}
	if _, ok := g.connIndex(id); ok {
		return &Error{Code: CodeDuplicateID, Message: fmt.Sprintf("connection id %d already in use", id)}
	}
	if err := g.checkConnection(from, to); err != nil {
		return err
	}
	g.conns = append(g.conns, Connection{ID: id, From: from, To: to})
	sort.Slice(g.conns, func(i, j int) bool { return g.conns[i].ID < g.conns[j].ID })
	if id >= g.nextConn {
		g.nextConn = id + 1
	}
	g.version++
	return nil
}

func (g *Graph) checkConnection(from, to Endpoint) error {
	src, ok := g.nodes[from.Node]
	if !ok {
		return notFound("node", int64(from.Node))
	}
	dst, ok := g.nodes[to.Node]
	if !ok {
		return notFound("node", int64(to.Node))
	}
	if from == to {
		return &Error{Code: CodeSelfLoop, Message: "source and destination are the same port", Node: from.Node, Port: from.Port}
	}

	if err := checkEndpoint(src, from.Port, Output); err != nil {
		return err
	}
	if err := checkEndpoint(dst, to.Port, Input); err != nil {
		return err
	}

	for _, c := range g.conns {
		if c.From == from && c.To == to {
			return &Error{
				Code:    CodeDuplicateConnection,
				Message: fmt.Sprintf("%s -> %s already connected (connection %d)", from, to, c.ID),
			}
		}
	}
	return nil
}

func checkEndpoint(n *Node, port string, want Direction) error {
	p := n.Port(port)
	if p == nil {
		return &Error{Code: CodePortNotFound, Message: "no such port", Node: n.ID, Port: port}
	}
	if p.Direction != want {
		return &Error{
			Code:    CodeWrongDirection,
			Message: fmt.Sprintf("port is an %s, need an %s", p.Direction, want),
			Node:    n.ID,
			Port:    port,
		}
	}
	return nil
}

// Disconnect removes one connection.
func (g *Graph) Disconnect(id ConnectionID) error {
	i, ok := g.connIndex(id)
	if !ok {
		return notFound("connection", int64(id))
	}
	g.conns = slices.Delete(g.conns, i, i+1)
	g.version++
	return nil
}

func (g *Graph) connIndex(id ConnectionID) (int, bool) {
	return slices.BinarySearchFunc(g.conns, id, func(c Connection, id ConnectionID) int {
		switch {
		case c.ID < id:
			return -1
		case c.ID > id:
			return 1
		}
		return 0
	})
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeByName returns the lowest-id node with the given display name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	for _, n := range g.Nodes() {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Nodes returns every node in ascending id order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Connections returns a copy of every connection in ascending id order.
func (g *Graph) Connections() []Connection {
	return slices.Clone(g.conns)
}

// Connection returns the connection with the given id.
func (g *Graph) Connection(id ConnectionID) (Connection, bool) {
	i, ok := g.connIndex(id)
	if !ok {
		return Connection{}, false
	}
	return g.conns[i], true
}

// Incoming returns the connections feeding a node, ascending id.
func (g *Graph) Incoming(id NodeID) []Connection {
	var in []Connection
	for _, c := range g.conns {
		if c.To.Node == id {
			in = append(in, c)
		}
	}
	return in
}

// Outgoing returns the connections leaving a node, ascending id.
func (g *Graph) Outgoing(id NodeID) []Connection {
	var out []Connection
	for _, c := range g.conns {
		if c.From.Node == id {
			out = append(out, c)
		}
	}
	return out
}

// Port resolves an endpoint to its port.
func (g *Graph) Port(e Endpoint) (*Port, error) {
	n, ok := g.nodes[e.Node]
	if !ok {
		return nil, notFound("node", int64(e.Node))
	}
	p := n.Port(e.Port)
	if p == nil {
		return nil, &Error{Code: CodePortNotFound, Message: "no such port", Node: e.Node, Port: e.Port}
	}
	return p, nil
}
