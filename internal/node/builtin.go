package node

import (
	"fmt"
	"math"
)

type constant struct{ base }

func (c *constant) Compute(_, _ float64, _ map[string]float64) (map[string]float64, error) {
	return c.single(c.params["value"]), nil
}

// sum adds every declared input in declaration order.
type sum struct{ base }

func (s *sum) Compute(_, _ float64, in map[string]float64) (map[string]float64, error) {
	var total float64
	for _, name := range s.inputs {
		total += in[name]
	}
	return s.single(total), nil
}

// product multiplies every declared input. A product without inputs is 0.
type product struct{ base }

func (p *product) Compute(_, _ float64, in map[string]float64) (map[string]float64, error) {
	if len(p.inputs) == 0 {
		return p.single(0), nil
	}
	total := 1.0
	for _, name := range p.inputs {
		total *= in[name]
	}
	return p.single(total), nil
}

type gain struct{ base }

func (g *gain) Compute(_, _ float64, in map[string]float64) (map[string]float64, error) {
	return g.single(in[g.inputs[0]] * g.params["k"]), nil
}

// integrator accumulates in*dt. Its output is the updated state; consumers
// inside the same tick are handed the previous value by the engine. A step
// that would leave the state non-finite fails and the state is kept.
type integrator struct {
	base
	state float64
}

func (it *integrator) Compute(dt, _ float64, in map[string]float64) (map[string]float64, error) {
	next := it.state + in[it.inputs[0]]*dt
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return nil, fmt.Errorf("integrator state not finite: %v", next)
	}
	it.state = next
	return it.single(it.state), nil
}

func (it *integrator) Reset() { it.state = it.params["initial"] }

// State returns the accumulated value.
func (it *integrator) State() float64 { return it.state }

// delay outputs the input it received on the previous tick.
type delay struct {
	base
	held float64
}

func (d *delay) Compute(_, _ float64, in map[string]float64) (map[string]float64, error) {
	out := d.held
	d.held = in[d.inputs[0]]
	return d.single(out), nil
}

func (d *delay) Reset() { d.held = d.params["initial"] }

// oscillator is a sine source. An optional input is added to freq.
type oscillator struct{ base }

func (o *oscillator) Compute(_, t float64, in map[string]float64) (map[string]float64, error) {
	freq := o.params["freq"]
	if len(o.inputs) == 1 {
		freq += in[o.inputs[0]]
	}
	v := o.params["amp"]*math.Sin(2*math.Pi*freq*t+o.params["phase"]) + o.params["offset"]
	return o.single(v), nil
}

type mixer struct{ base }

func (m *mixer) Compute(_, _ float64, in map[string]float64) (map[string]float64, error) {
	var total float64
	for _, name := range m.inputs {
		total += in[name]
	}
	if m.params["mode"] == MixAverage && len(m.inputs) > 0 {
		total /= float64(len(m.inputs))
	}
	return m.single(total), nil
}
