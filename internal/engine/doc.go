// Package engine runs a patch graph in discrete simulated time.
//
// The engine is a small state machine (Idle, Running, Paused, Stopped)
// around one operation, Tick. Tick is deterministic: given the same graph,
// dt and injections, a run from reset produces the same samples bit for
// bit, because
//   - evaluation order comes from the graph schedule, ties broken by id
//   - fan-in sums are accumulated in connection id order
//   - time is simulated, never read from the wall clock
//   - nothing in a tick runs concurrently
//
// Feedback: connections leaving a stateful node (integrator, delay) deliver
// the value from the end of the previous tick, so such cycles are well
// defined. A cycle made only of stateless nodes is evaluated in ascending
// id order; nodes early in that order see last tick's values. Nodes fed by
// such a cycle run after all of its members.
//
// An integrator closed through a gain of -1 and kicked once with 1.0 reads
// 1, 0, 0, 0 at dt 1 while the gain reads 0, -1, 0, 0. The loop settles in
// one step and does not alternate; at dt 1.5 the integrator reads 1.5,
// -0.75, 0.375.
//
// Containment: a node whose compute fails (error, panic, NaN or Inf output)
// emits 0.0 on all outputs for that tick and its degraded counter grows.
// Nothing else is affected.
//
// Concurrency: the engine is the single writer. Structural edits go through
// the engine and are refused while Running (graph.ErrGraphLocked); Defer
// queues them for the next tick boundary instead. Reads return copies.
package engine
