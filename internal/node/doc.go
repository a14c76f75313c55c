// Package node defines the behaviours a patch node can have.
//
// The set of kinds is closed: every behaviour implements Behavior and the
// engine dispatches through that interface only, never on Kind. Kinds are
// built with New from a Config (parameters, port names, formula source).
//
// Stateful behaviours (integrator, delay) break feedback cycles: within a
// tick their consumers see the output value from the end of the previous
// tick. The engine enforces that rule; a behaviour only reports Stateful.
package node
