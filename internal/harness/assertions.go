package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	// Series is the probed series the assertion looked at, if any.
	Series []float64
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Series) > 0 {
		fmt.Fprintf(&buf, "\nSeries:\n")
		for i, v := range e.Series {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatFloat(v))
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the finished run.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Engine *engine.Engine
	// Lookup resolves node.port to an endpoint.
	Lookup func(ref string) (graph.Endpoint, error)
}

// EvaluateAssertions evaluates every assertion and returns the messages
// of those that failed.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertPortValue:
			err = assertPortValue(result, a)
		case AssertFinalValue:
			err = assertFinalValue(result, a, actx)
		case AssertSeries:
			err = assertSeries(result, a)
		case AssertDegradedCount:
			err = assertDegradedCount(result, a)
		case AssertBounded:
			err = assertBounded(result, a)
		case AssertSignAlternates:
			err = assertSignAlternates(result, a)
		case AssertHistoryLen:
			err = assertHistoryLen(a, actx)
		case AssertReplay:
			err = assertReplay(result, actx)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func near(want, got, tol float64) bool {
	if tol == 0 {
		return want == got
	}
	return math.Abs(want-got) <= tol
}

func tracedSeries(result *Result, ref string) []float64 {
	name, port := splitPortRef(ref)
	return result.Series(name, port)
}

func assertPortValue(result *Result, a Assertion) error {
	name, port := splitPortRef(a.Port)
	for _, ev := range result.Trace {
		if ev.Tick != a.Tick || ev.Node != name || ev.Port != port {
			continue
		}
		if !near(*a.Expect, ev.Value, a.Tolerance) {
			return &AssertionError{
				Type:     AssertPortValue,
				Expected: fmt.Sprintf("%s = %s after tick %d", a.Port, formatFloat(*a.Expect), a.Tick),
				Actual:   formatFloat(ev.Value),
				Series:   result.Series(name, port),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertPortValue,
		Expected: fmt.Sprintf("%s traced after tick %d", a.Port, a.Tick),
		Actual:   "not in trace (add it to probes?)",
	}
}

// assertFinalValue reads the engine directly, so the port need not be
// probed.
func assertFinalValue(result *Result, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Engine == nil {
		return fmt.Errorf("final_value requires an engine")
	}
	ep, err := actx.Lookup(a.Port)
	if err != nil {
		return err
	}
	got, err := actx.Engine.PortValue(ep.Node, ep.Port)
	if err != nil {
		return err
	}
	if !near(*a.Expect, got, a.Tolerance) {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %s after tick %d", a.Port, formatFloat(*a.Expect), result.Ticks),
			Actual:   formatFloat(got),
			Series:   tracedSeries(result, a.Port),
		}
	}
	return nil
}

func assertSeries(result *Result, a Assertion) error {
	got := tracedSeries(result, a.Port)
	if len(got) < len(a.Values) {
		return &AssertionError{
			Type:     AssertSeries,
			Expected: fmt.Sprintf("at least %d values of %s", len(a.Values), a.Port),
			Actual:   fmt.Sprintf("%d values", len(got)),
			Series:   got,
		}
	}
	for i, want := range a.Values {
		if !near(want, got[i], a.Tolerance) {
			return &AssertionError{
				Type:     AssertSeries,
				Expected: fmt.Sprintf("%s = %s after tick %d", a.Port, formatFloat(want), i+1),
				Actual:   formatFloat(got[i]),
				Series:   got,
			}
		}
	}
	return nil
}

func assertDegradedCount(result *Result, a Assertion) error {
	got := result.Degraded[a.Node]
	if got != uint64(*a.Count) {
		return &AssertionError{
			Type:     AssertDegradedCount,
			Expected: fmt.Sprintf("%s degraded %d times", a.Node, *a.Count),
			Actual:   fmt.Sprintf("%d times", got),
		}
	}
	return nil
}

func assertBounded(result *Result, a Assertion) error {
	got := tracedSeries(result, a.Port)
	if len(got) == 0 {
		return &AssertionError{
			Type:     AssertBounded,
			Expected: fmt.Sprintf("%s in trace", a.Port),
			Actual:   "no values",
		}
	}
	for i, v := range got {
		if math.IsNaN(v) || math.Abs(v) > *a.Max {
			return &AssertionError{
				Type:     AssertBounded,
				Expected: fmt.Sprintf("|%s| <= %s", a.Port, formatFloat(*a.Max)),
				Actual:   fmt.Sprintf("%s after tick %d", formatFloat(v), i+1),
				Series:   got,
			}
		}
	}
	return nil
}

func assertSignAlternates(result *Result, a Assertion) error {
	from := a.From
	if from < 1 {
		from = 1
	}
	got := tracedSeries(result, a.Port)
	prev, prevTick := 0.0, int64(0)
	for i, v := range got {
		tick := int64(i + 1)
		if tick < from || v == 0 {
			continue
		}
		if prev != 0 && math.Signbit(prev) == math.Signbit(v) {
			return &AssertionError{
				Type:     AssertSignAlternates,
				Expected: fmt.Sprintf("%s to change sign between ticks %d and %d", a.Port, prevTick, tick),
				Actual:   fmt.Sprintf("%s then %s", formatFloat(prev), formatFloat(v)),
				Series:   got,
			}
		}
		prev, prevTick = v, tick
	}
	if prevTick == 0 {
		return &AssertionError{
			Type:     AssertSignAlternates,
			Expected: fmt.Sprintf("nonzero values of %s from tick %d", a.Port, from),
			Actual:   "none",
			Series:   got,
		}
	}
	return nil
}

func assertHistoryLen(a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Engine == nil {
		return fmt.Errorf("history_len requires an engine")
	}
	ep, err := actx.Lookup(a.Port)
	if err != nil {
		return err
	}
	samples, err := actx.Engine.History(ep.Node, ep.Port)
	if err != nil {
		return err
	}
	if len(samples) != *a.Count {
		return &AssertionError{
			Type:     AssertHistoryLen,
			Expected: fmt.Sprintf("%d samples of %s", *a.Count, a.Port),
			Actual:   fmt.Sprintf("%d samples", len(samples)),
		}
	}
	return nil
}

func assertReplay(result *Result, actx *AssertionContext) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("replay requires a run store")
	}
	rr, err := actx.Store.Replay(actx.Ctx, result.RunID)
	if err != nil {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: fmt.Sprintf("run %s to replay", result.RunID),
			Actual:   err.Error(),
		}
	}
	if rr.Divergence != nil {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: "identical samples on replay",
			Actual:   rr.Divergence.Error(),
		}
	}
	return nil
}
