package node

import (
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// simVar is the variable that exposes simulated time to formulas.
const simVar = "sim"

// formula evaluates user-written HCL assignments, one per line:
//
//	y   = a * k + sin(sim.time)
//	out = clamp(y, -1, 1)
//
// Assignments run in source order and later lines see earlier results.
// Declared outputs that are never assigned read as 0.0.
type formula struct {
	base
	source  string
	assigns []assignment
}

type assignment struct {
	name string
	expr hclsyntax.Expression
}

func newFormula(b base, source string) (*formula, error) {
	if len(b.outputs) == 0 {
		return nil, &ConfigError{Kind: KindFormula, Field: "outputs", Message: "at least one output port required"}
	}
	for _, name := range b.inputs {
		if name == simVar {
			return nil, &ConfigError{Kind: KindFormula, Field: "inputs", Message: fmt.Sprintf("%q is reserved", simVar)}
		}
	}
	for _, name := range b.outputs {
		if name == simVar {
			return nil, &ConfigError{Kind: KindFormula, Field: "outputs", Message: fmt.Sprintf("%q is reserved", simVar)}
		}
	}
	assigns, err := parseAssignments(source)
	if err != nil {
		return nil, &ConfigError{Kind: KindFormula, Field: "formula", Message: err.Error()}
	}
	return &formula{base: b, source: source, assigns: assigns}, nil
}

func parseAssignments(source string) ([]assignment, error) {
	file, diags := hclsyntax.ParseConfig([]byte(source), "formula", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected body type %T", file.Body)
	}
	if len(body.Blocks) > 0 {
		return nil, fmt.Errorf("line %d: blocks are not allowed, only assignments", body.Blocks[0].DefRange().Start.Line)
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		if attr.Name == simVar {
			return nil, fmt.Errorf("line %d: cannot assign to %q", attr.SrcRange.Start.Line, simVar)
		}
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	assigns := make([]assignment, len(attrs))
	for i, attr := range attrs {
		assigns[i] = assignment{name: attr.Name, expr: attr.Expr}
	}
	return assigns, nil
}

func (f *formula) Compute(dt, t float64, in map[string]float64) (out map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("formula panicked: %v", r)
		}
	}()

	vars := make(map[string]cty.Value, len(f.inputs)+len(f.assigns)+1)
	for _, name := range f.inputs {
		vars[name] = cty.NumberFloatVal(in[name])
	}
	vars[simVar] = cty.ObjectVal(map[string]cty.Value{
		"time": cty.NumberFloatVal(t),
		"dt":   cty.NumberFloatVal(dt),
	})
	ctx := &hcl.EvalContext{Variables: vars, Functions: functions}

	for _, a := range f.assigns {
		v, diags := a.expr.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: %w", a.name, diags)
		}
		if v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.Number) {
			return nil, fmt.Errorf("%s: result is %s, not a number", a.name, v.GoString())
		}
		vars[a.name] = v
	}

	out = make(map[string]float64, len(f.outputs))
	for _, name := range f.outputs {
		v, ok := vars[name]
		if !ok {
			out[name] = 0
			continue
		}
		fv, _ := v.AsBigFloat().Float64()
		if math.IsNaN(fv) || math.IsInf(fv, 0) {
			return nil, fmt.Errorf("%s: non-finite result", name)
		}
		out[name] = fv
	}
	return out, nil
}

func (f *formula) Config() Config {
	cfg := f.base.Config()
	cfg.Formula = f.source
	return cfg
}

// Source returns the formula text as written.
func (f *formula) Source() string { return f.source }
