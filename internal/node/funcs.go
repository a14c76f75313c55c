package node

import (
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions is the function table available to formulas.
var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"log":    stdlib.LogFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"sin":    unaryFunc(math.Sin),
	"cos":    unaryFunc(math.Cos),
	"tan":    unaryFunc(math.Tan),
	"exp":    unaryFunc(math.Exp),
	"sqrt":   unaryFunc(math.Sqrt),
	"clamp":  clampFunc,
}

// FunctionNames lists the functions a formula may call.
func FunctionNames() []string {
	return sortedKeys(functions)
}

func unaryFunc(fn func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "x", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			x, _ := args[0].AsBigFloat().Float64()
			return numberVal(fn(x))
		},
	})
}

var clampFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "x", Type: cty.Number},
		{Name: "lo", Type: cty.Number},
		{Name: "hi", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		x, _ := args[0].AsBigFloat().Float64()
		lo, _ := args[1].AsBigFloat().Float64()
		hi, _ := args[2].AsBigFloat().Float64()
		if lo > hi {
			return cty.UnknownVal(cty.Number), function.NewArgErrorf(1, "lower bound %g exceeds upper bound %g", lo, hi)
		}
		return numberVal(math.Min(math.Max(x, lo), hi))
	},
})

// numberVal converts a float to cty, refusing NaN which cty cannot hold.
func numberVal(v float64) (cty.Value, error) {
	if math.IsNaN(v) {
		return cty.UnknownVal(cty.Number), fmt.Errorf("result is not a number")
	}
	return cty.NumberFloatVal(v), nil
}
