package node

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a node behaviour.
type Kind string

const (
	KindConstant   Kind = "constant"
	KindSum        Kind = "sum"
	KindProduct    Kind = "product"
	KindGain       Kind = "gain"
	KindIntegrator Kind = "integrator"
	KindFormula    Kind = "formula"
	KindDelay      Kind = "delay"
	KindOscillator Kind = "oscillator"
	KindMixer      Kind = "mixer"
)

// unbounded marks a kind that accepts any number of inputs.
const unbounded = -1

type paramSpec struct {
	name string
	def  float64
}

// kindSpec describes the ports and parameters a kind accepts.
type kindSpec struct {
	params    []paramSpec
	inputs    []string // defaults when Config.Inputs is empty
	outputs   []string // defaults when Config.Outputs is empty
	minInputs int
	maxInputs int
	stateful  bool
}

var kindSpecs = map[Kind]kindSpec{
	KindConstant: {
		params:  []paramSpec{{"value", 0}},
		outputs: []string{"out"}, maxInputs: 0,
	},
	KindSum: {
		inputs: []string{"a", "b"}, outputs: []string{"out"},
		maxInputs: unbounded,
	},
	KindProduct: {
		inputs: []string{"a", "b"}, outputs: []string{"out"},
		maxInputs: unbounded,
	},
	KindGain: {
		params: []paramSpec{{"k", 1}},
		inputs: []string{"in"}, outputs: []string{"out"},
		minInputs: 1, maxInputs: 1,
	},
	KindIntegrator: {
		params: []paramSpec{{"initial", 0}},
		inputs: []string{"in"}, outputs: []string{"out"},
		minInputs: 1, maxInputs: 1, stateful: true,
	},
	KindDelay: {
		params: []paramSpec{{"initial", 0}},
		inputs: []string{"in"}, outputs: []string{"out"},
		minInputs: 1, maxInputs: 1, stateful: true,
	},
	KindOscillator: {
		params:  []paramSpec{{"amp", 1}, {"freq", 1}, {"phase", 0}, {"offset", 0}},
		outputs: []string{"out"}, maxInputs: 1,
	},
	KindMixer: {
		params: []paramSpec{{"mode", MixSum}},
		inputs: []string{"in1", "in2"}, outputs: []string{"out"},
		maxInputs: unbounded,
	},
	KindFormula: {
		maxInputs: unbounded,
	},
}

// Mixer modes.
const (
	MixSum     = 0
	MixAverage = 1
)

// Kinds returns every known kind in lexical order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindSpecs))
	for k := range kindSpecs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseKind resolves a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindSpecs[k]; !ok {
		return "", fmt.Errorf("unknown node kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Stateful reports whether nodes of this kind carry state across ticks.
func (k Kind) Stateful() bool {
	return kindSpecs[k].stateful
}

// DefaultParams returns the parameters of k with their default values.
func (k Kind) DefaultParams() map[string]float64 {
	spec := kindSpecs[k]
	params := make(map[string]float64, len(spec.params))
	for _, p := range spec.params {
		params[p.name] = p.def
	}
	return params
}
