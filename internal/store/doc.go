// Package store keeps a durable log of simulation runs in SQLite.
//
// Tables:
//   - runs: one row per run id, with the patch that produced it
//   - samples: every output port value at the end of every tick
//   - degraded_events: one row per failed node compute
//
// # Ordering
//
// Reads order by tick, then node id, then port name (COLLATE BINARY).
// Wall-clock columns are informational and never used for ordering, so
// two reads of the same run always return the same sequence.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// A RunLog attaches the store to an engine as an observer; Replay rebuilds
// a stored run's patch, runs it again and compares the traces.
package store
