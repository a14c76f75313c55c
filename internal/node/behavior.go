package node

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Behavior is the compute contract shared by every node kind.
//
// Compute receives the aggregated input values keyed by input port name and
// returns output values keyed by output port name. Outputs missing from the
// returned map read as 0.0. A returned error marks the node degraded for the
// tick; it never stops the simulation.
type Behavior interface {
	Kind() Kind
	Ports() (inputs, outputs []string)
	Compute(dt, time float64, inputs map[string]float64) (map[string]float64, error)
	Reset()
	Stateful() bool
	Config() Config
}

// Config carries everything needed to build a Behavior.
type Config struct {
	Params  map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Inputs  []string           `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string           `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Formula string             `json:"formula,omitempty" yaml:"formula,omitempty"`
}

// ConfigError reports a Config a kind cannot be built from.
type ConfigError struct {
	Kind    Kind
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s node: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s node: %s", e.Kind, e.Message)
}

// New builds a behaviour of the given kind.
//
// Empty port lists fall back to the kind's defaults. Parameters not given
// take their defaults; unknown parameter names are rejected.
func New(kind Kind, cfg Config) (Behavior, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, &ConfigError{Kind: kind, Message: "unknown kind"}
	}

	b := base{
		kind:    kind,
		inputs:  slices.Clone(cfg.Inputs),
		outputs: slices.Clone(cfg.Outputs),
		params:  kind.DefaultParams(),
	}
	if len(b.inputs) == 0 {
		b.inputs = slices.Clone(spec.inputs)
	}
	if len(b.outputs) == 0 {
		b.outputs = slices.Clone(spec.outputs)
	}

	for _, name := range sortedKeys(cfg.Params) {
		if _, known := b.params[name]; !known {
			return nil, &ConfigError{Kind: kind, Field: "params." + name, Message: "unknown parameter"}
		}
		b.params[name] = cfg.Params[name]
	}

	if n := len(b.inputs); n < spec.minInputs || (spec.maxInputs != unbounded && n > spec.maxInputs) {
		return nil, &ConfigError{Kind: kind, Field: "inputs", Message: inputArity(spec, n)}
	}
	if kind != KindFormula && len(b.outputs) != 1 {
		return nil, &ConfigError{Kind: kind, Field: "outputs", Message: "exactly one output port required"}
	}
	if kind != KindFormula && cfg.Formula != "" {
		return nil, &ConfigError{Kind: kind, Field: "formula", Message: "only formula nodes take a formula"}
	}

	switch kind {
	case KindConstant:
		return &constant{base: b}, nil
	case KindSum:
		return &sum{base: b}, nil
	case KindProduct:
		return &product{base: b}, nil
	case KindGain:
		return &gain{base: b}, nil
	case KindIntegrator:
		it := &integrator{base: b}
		it.Reset()
		return it, nil
	case KindDelay:
		d := &delay{base: b}
		d.Reset()
		return d, nil
	case KindOscillator:
		return &oscillator{base: b}, nil
	case KindMixer:
		mode := b.params["mode"]
		if mode != MixSum && mode != MixAverage {
			return nil, &ConfigError{Kind: kind, Field: "params.mode", Message: "mode must be 0 (sum) or 1 (average)"}
		}
		return &mixer{base: b}, nil
	case KindFormula:
		return newFormula(b, cfg.Formula)
	}
	return nil, &ConfigError{Kind: kind, Message: "unknown kind"}
}

func inputArity(spec kindSpec, n int) string {
	switch {
	case spec.maxInputs == unbounded:
		return fmt.Sprintf("at least %d input ports required, got %d", spec.minInputs, n)
	case spec.minInputs == spec.maxInputs:
		return fmt.Sprintf("exactly %d input ports required, got %d", spec.minInputs, n)
	default:
		return fmt.Sprintf("between %d and %d input ports required, got %d", spec.minInputs, spec.maxInputs, n)
	}
}

// base holds the parts every behaviour shares.
type base struct {
	kind    Kind
	inputs  []string
	outputs []string
	params  map[string]float64
}

func (b *base) Kind() Kind { return b.kind }

func (b *base) Ports() ([]string, []string) {
	return slices.Clone(b.inputs), slices.Clone(b.outputs)
}

func (b *base) Stateful() bool { return b.kind.Stateful() }

func (b *base) Reset() {}

func (b *base) Config() Config {
	return Config{
		Params:  maps.Clone(b.params),
		Inputs:  slices.Clone(b.inputs),
		Outputs: slices.Clone(b.outputs),
	}
}

// single wraps one value into the output map of a single-output behaviour.
func (b *base) single(v float64) map[string]float64 {
	return map[string]float64{b.outputs[0]: v}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
