package graph

import (
	"fmt"
	"slices"
	"strings"
)

// Cycle warning levels.
const (
	LevelInfo   = "info"
	LevelHazard = "hazard"
)

// CycleWarning describes one feedback cycle.
//
// Cycles are legal. A cycle that passes through a stateful node is
// well-defined (Level info). A cycle made only of stateless nodes runs in
// the cyclic batch, where a node evaluated before its producer sees the
// producer's value from the previous tick (Level hazard).
type CycleWarning struct {
	Path     []NodeID `json:"path"`
	Breakers []NodeID `json:"breakers,omitempty"`
	Message  string   `json:"message"`
	Level    string   `json:"level"`
}

// AnalyzeCycles finds every strongly connected component of the node
// dependency graph with more than one node, or with a self edge, using
// Tarjan's algorithm. Results are ordered by the lowest id in each cycle.
func (g *Graph) AnalyzeCycles() []CycleWarning {
	deps := g.dependencyGraph()

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(g.sortedIDs(), deps) {
		if len(scc) == 1 && !slices.Contains(deps[scc[0]], scc[0]) {
			continue
		}
		warnings = append(warnings, g.cycleWarning(scc, deps))
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return int(slices.Min(a.Path) - slices.Min(b.Path))
	})
	return warnings
}

// dependencyGraph maps each node to the distinct nodes it feeds, ascending.
func (g *Graph) dependencyGraph() map[NodeID][]NodeID {
	deps := make(map[NodeID][]NodeID, len(g.nodes))
	for _, c := range g.conns {
		if !slices.Contains(deps[c.From.Node], c.To.Node) {
			deps[c.From.Node] = append(deps[c.From.Node], c.To.Node)
		}
	}
	for id := range deps {
		slices.Sort(deps[id])
	}
	return deps
}

func (g *Graph) sortedIDs() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// tarjanSCC returns the strongly connected components of the graph.
// Visiting order is fixed by ids so the output is deterministic.
func tarjanSCC(ids []NodeID, deps map[NodeID][]NodeID) [][]NodeID {
	var (
		index   = 0
		stack   []NodeID
		indices = make(map[NodeID]int)
		lowlink = make(map[NodeID]int)
		onStack = make(map[NodeID]bool)
		sccs    [][]NodeID
	)

	var strongConnect func(NodeID)
	strongConnect = func(v NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range deps[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, id := range ids {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return sccs
}

func (g *Graph) cycleWarning(scc []NodeID, deps map[NodeID][]NodeID) CycleWarning {
	path := cyclePath(scc, deps)

	var breakers []NodeID
	for _, id := range scc {
		if g.nodes[id].Stateful() {
			breakers = append(breakers, id)
		}
	}

	names := make([]string, len(path))
	for i, id := range path {
		names[i] = g.label(id)
	}
	w := CycleWarning{Path: path, Breakers: breakers, Level: LevelInfo}
	if len(breakers) == 0 {
		w.Level = LevelHazard
		w.Message = fmt.Sprintf("stateless feedback cycle %s: evaluated with a one-tick lag", strings.Join(names, " -> "))
	} else {
		w.Message = fmt.Sprintf("feedback cycle %s broken by stateful node", strings.Join(names, " -> "))
	}
	return w
}

// cyclePath walks from the lowest id through SCC members back to the start.
func cyclePath(scc []NodeID, deps map[NodeID][]NodeID) []NodeID {
	start := scc[0]
	if len(scc) == 1 {
		return []NodeID{start, start}
	}
	members := make(map[NodeID]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	path := []NodeID{start}
	visited := map[NodeID]bool{start: true}
	current := start
	for {
		var next NodeID
		for _, w := range deps[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == 0 {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}

func (g *Graph) label(id NodeID) string {
	if n, ok := g.nodes[id]; ok && n.Name != "" {
		return fmt.Sprintf("%s(%d)", n.Name, id)
	}
	return fmt.Sprintf("%d", id)
}
