// Package harness runs conformance scenarios against patches.
//
// A scenario names a patch, drives it for a number of ticks with optional
// one-tick injections, and checks assertions against the recorded trace.
//
// # Scenario Format
//
//	name: feedback_deadbeat
//	description: "Integrator and inverting gain settle after one kick"
//	patch: ../patches/feedback.cue
//	dt: 1
//	ticks: 4
//	inject:
//	  - {at: 0, port: integ.in, value: 1}
//	probes: [integ.out, gain.out]
//	assertions:
//	  - {type: series, port: integ.out, values: [1, 0, 0, 0]}
//	  - {type: bounded, port: gain.out, max: 1}
//	  - {type: replay}
//
// Paths are relative to the scenario file. Ports are written node.port
// using node names.
//
// # Assertion Types
//
//   - port_value: value of a port after a given tick
//   - final_value: value of a port after the last tick
//   - series: values of a port after ticks 1..n
//   - degraded_count: how many ticks a node failed to compute
//   - bounded: every value of a port stays within [-max, max]
//   - sign_alternates: nonzero values of a port alternate in sign
//   - history_len: number of samples the engine retains for a port
//   - replay: the run, logged to an in-memory store, replays identically
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run id and a fresh in-memory store, so
// traces are byte-identical across runs and can be compared with golden
// files:
//
//	go test ./internal/harness -update
package harness
