package harness

import (
	"fmt"
	"strconv"
	"strings"
)

// TraceEvent is one probed port value after a tick.
type TraceEvent struct {
	Tick  int64   `json:"tick"`
	Time  float64 `json:"time"`
	Node  string  `json:"node"`
	Port  string  `json:"port"`
	Value float64 `json:"value"`
}

// String renders the event on one line, the format golden files use.
func (e TraceEvent) String() string {
	return fmt.Sprintf("tick=%d time=%s node=%s port=%s value=%s",
		e.Tick, formatFloat(e.Time), e.Node, e.Port, formatFloat(e.Value))
}

func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`
	Ticks int64  `json:"ticks"`

	// Trace holds the probed ports, tick by tick, in probe order.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// Degraded maps node names to failed compute counts. Healthy nodes
	// are omitted.
	Degraded map[string]uint64 `json:"degraded,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Degraded: make(map[string]uint64),
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Series returns the traced values of one port in tick order.
func (r *Result) Series(nodeName, port string) []float64 {
	var out []float64
	for _, ev := range r.Trace {
		if ev.Node == nodeName && ev.Port == port {
			out = append(out, ev.Value)
		}
	}
	return out
}

// FormatTrace renders the trace one event per line.
func FormatTrace(trace []TraceEvent) string {
	var b strings.Builder
	for _, ev := range trace {
		b.WriteString(ev.String())
		b.WriteByte('\n')
	}
	return b.String()
}
