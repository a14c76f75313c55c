package engine

import (
	"context"
	"time"

	"github.com/roach88/patchbay/internal/graph"
)

// PortSample is the value of one output port at the end of a tick.
type PortSample struct {
	Node  graph.NodeID `json:"node"`
	Port  string       `json:"port"`
	Value float64      `json:"value"`
}

// DegradedNode reports a node whose compute failed during a tick.
type DegradedNode struct {
	Node  graph.NodeID `json:"node"`
	Name  string       `json:"name"`
	Error string       `json:"error"`
}

// TickReport describes one completed tick. Samples are ordered by node id
// and then by output declaration order.
type TickReport struct {
	RunID    string         `json:"run_id"`
	Tick     int64          `json:"tick"`
	Time     float64        `json:"time"`
	Samples  []PortSample   `json:"samples"`
	Degraded []DegradedNode `json:"degraded,omitempty"`
	Nodes    int            `json:"nodes"`
	Elapsed  time.Duration  `json:"-"`
}

// Observer is notified after every tick, in tick order, from the goroutine
// that ran the tick. Errors are logged and do not affect the simulation.
type Observer interface {
	TickCompleted(ctx context.Context, report TickReport) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report TickReport) error

// TickCompleted implements Observer.
func (f ObserverFunc) TickCompleted(ctx context.Context, report TickReport) error {
	return f(ctx, report)
}
