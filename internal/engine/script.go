package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/patchbay/internal/graph"
)

// Injection adds Value to an input port for one tick. At is the number of
// ticks completed when the value is injected, so At 0 feeds the first tick.
type Injection struct {
	At    int64        `json:"at" yaml:"at"`
	Node  graph.NodeID `json:"node" yaml:"node"`
	Port  string       `json:"port" yaml:"port"`
	Value float64      `json:"value" yaml:"value"`
}

// Script runs n ticks, applying each injection before the tick it feeds.
// Injections are applied in the order given; injections scheduled before
// the engine's current tick count are ignored.
func (e *Engine) Script(ctx context.Context, n int, injections []Injection) ([]TickReport, error) {
	pending := slices.Clone(injections)
	slices.SortStableFunc(pending, func(a, b Injection) int { return cmp.Compare(a.At, b.At) })

	reports := make([]TickReport, 0, n)
	for i := 0; i < n; i++ {
		now := e.Ticks()
		for len(pending) > 0 && pending[0].At <= now {
			inj := pending[0]
			pending = pending[1:]
			if inj.At < now {
				continue
			}
			if err := e.Inject(inj.Node, inj.Port, inj.Value); err != nil {
				return reports, fmt.Errorf("inject %d.%s at tick %d: %w", inj.Node, inj.Port, inj.At, err)
			}
		}
		reports = append(reports, e.Tick(ctx))
	}
	return reports, nil
}
