// Package patch is the persisted form of a graph.
//
// A Document lists nodes (id, name, kind, parameters, ports, formula) and
// connections (id, source endpoint, destination endpoint) together with the
// step length and history capacity. Documents round-trip through YAML and
// JSON with their ids intact; CUE files are an authoring format where
// nodes are keyed by name and ids follow declaration order.
//
// Node state is not persisted. A graph built from a Document starts at the
// declared initial conditions.
//
// Canonical JSON (sorted keys, NFC strings, shortest float text) gives each
// Document a stable content hash, which the run store records so a stored
// run can be matched to the patch that produced it.
package patch
