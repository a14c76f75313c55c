// Package graph holds the patch topology: nodes with ordered named ports and
// directed connections from output ports to input ports.
//
// Nodes live in an arena keyed by NodeID; connections are a flat list that
// refers to endpoints by (node id, port name). There are no back pointers,
// so removing a node is a map delete plus a filter over the edge list.
//
// The graph also answers scheduling questions: TopologicalBatches layers
// the dependency graph with Kahn's algorithm, EvaluationOrder does the same
// while treating stateful nodes as cycle breakers, and AnalyzeCycles reports
// feedback cycles with Tarjan's algorithm.
package graph
