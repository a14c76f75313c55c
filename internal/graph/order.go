package graph

import (
	"slices"
)

// Batches is an evaluation schedule.
//
// Every node in Ordered[i] depends only on nodes in earlier batches; nodes
// inside one batch are independent and sorted by ascending id. Cyclic holds
// the nodes that sit on a cycle, in ascending id order.
//
// Tail is the evaluation order of everything Kahn's algorithm could not
// resolve: the cycles plus the nodes downstream of them. Strongly
// connected components run in dependency order, each one in ascending id,
// so a node fed by a cycle always runs after every node of that cycle.
type Batches struct {
	Ordered [][]NodeID
	Cyclic  []NodeID
	Tail    []NodeID
}

// Flatten returns the full evaluation order: ordered batches first, then
// the tail.
func (b Batches) Flatten() []NodeID {
	var out []NodeID
	for _, batch := range b.Ordered {
		out = append(out, batch...)
	}
	return append(out, b.Tail...)
}

// TopologicalBatches layers the node dependency graph with Kahn's
// algorithm. Node A depends on node B when an output of B feeds an input
// of A directly.
func (g *Graph) TopologicalBatches() Batches {
	return g.batches(func(*Node) bool { return false })
}

// EvaluationOrder is TopologicalBatches with edges leaving stateful nodes
// removed. Their consumers read last tick's value, so a cycle through an
// integrator or delay resolves into ordinary batches and only purely
// stateless cycles end up in Cyclic.
func (g *Graph) EvaluationOrder() Batches {
	return g.batches((*Node).Stateful)
}

func (g *Graph) batches(breaks func(*Node) bool) Batches {
	indegree := make(map[NodeID]int, len(g.nodes))
	succ := make(map[NodeID][]NodeID, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	for _, c := range g.conns {
		if breaks(g.nodes[c.From.Node]) {
			continue
		}
		succ[c.From.Node] = append(succ[c.From.Node], c.To.Node)
		indegree[c.To.Node]++
	}

	var frontier []NodeID
	for id, d := range indegree {
		if d == 0 {
			frontier = append(frontier, id)
		}
	}

	var out Batches
	for len(frontier) > 0 {
		slices.Sort(frontier)
		out.Ordered = append(out.Ordered, frontier)

		var next []NodeID
		for _, id := range frontier {
			delete(indegree, id)
			for _, s := range succ[id] {
				indegree[s]--
				if indegree[s] == 0 {
					next = append(next, s)
				}
			}
		}
		frontier = next
	}

	if len(indegree) == 0 {
		return out
	}
	rest := make([]NodeID, 0, len(indegree))
	for id := range indegree {
		rest = append(rest, id)
	}
	slices.Sort(rest)
	out.Cyclic, out.Tail = orderRemainder(rest, succ)
	return out
}

// orderRemainder schedules the nodes left over by Kahn's algorithm. It
// condenses them into strongly connected components and orders the
// components topologically, lowest member id first among ready ones.
func orderRemainder(rest []NodeID, succ map[NodeID][]NodeID) (cyclic, tail []NodeID) {
	inRest := make(map[NodeID]bool, len(rest))
	for _, id := range rest {
		inRest[id] = true
	}
	deps := make(map[NodeID][]NodeID, len(rest))
	for _, id := range rest {
		for _, s := range succ[id] {
			if inRest[s] && !slices.Contains(deps[id], s) {
				deps[id] = append(deps[id], s)
			}
		}
		slices.Sort(deps[id])
	}

	sccs := tarjanSCC(rest, deps)
	comp := make(map[NodeID]int, len(rest))
	for i, scc := range sccs {
		for _, id := range scc {
			comp[id] = i
		}
		if len(scc) > 1 || slices.Contains(deps[scc[0]], scc[0]) {
			cyclic = append(cyclic, scc...)
		}
	}
	slices.Sort(cyclic)

	indegree := make([]int, len(sccs))
	next := make([][]int, len(sccs))
	for _, id := range rest {
		for _, s := range deps[id] {
			from, to := comp[id], comp[s]
			if from != to && !slices.Contains(next[from], to) {
				next[from] = append(next[from], to)
				indegree[to]++
			}
		}
	}

	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b int) int { return int(sccs[a][0] - sccs[b][0]) })
		c := ready[0]
		ready = ready[1:]
		tail = append(tail, sccs[c]...)
		for _, n := range next[c] {
			indegree[n]--
			if indegree[n] == 0 {
				ready = append(ready, n)
			}
		}
	}
	return cyclic, tail
}
