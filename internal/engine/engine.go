package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/history"
	"github.com/roach88/patchbay/internal/node"
)

// State is the engine lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Engine owns a graph and advances it one tick at a time.
//
// All graph mutations and ticks take the engine's write lock, so a tick
// always sees a consistent graph. Read-back methods take the read lock and
// return copies. Structural edits are refused while Running; use Defer to
// queue them for the next tick boundary instead.
type Engine struct {
	mu sync.RWMutex

	graph    *graph.Graph
	clock    *Clock
	state    State
	history  *history.Recorder
	degraded *DegradedTracker
	budget   *TickBudget
	pending  *mutationQueue
	injected map[graph.Endpoint]float64

	observers []Observer
	runIDs    RunIDGenerator
	runID     string

	dt         float64
	historyCap int
	maxTicks   int64

	// evaluation order cache, rebuilt when the graph version changes
	order        []graph.NodeID
	incoming     map[graph.NodeID][]graph.Connection
	orderVersion uint64
	orderValid   bool

	// wake signals the Run loop that the state changed (buffered, size 1)
	wake chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithDT sets the simulated step length. Default: DefaultDT.
func WithDT(dt float64) Option {
	return func(e *Engine) { e.dt = dt }
}

// WithHistoryCapacity sets the samples kept per output port.
// Default: history.DefaultCapacity.
func WithHistoryCapacity(n int) Option {
	return func(e *Engine) { e.historyCap = n }
}

// WithMaxTicks caps the ticks Run may drive (0 = unlimited).
func WithMaxTicks(n int64) Option {
	return func(e *Engine) { e.maxTicks = n }
}

// WithObserver registers an observer notified after every tick.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithRunIDs sets the run id source. Default: UUIDv7Generator.
func WithRunIDs(gen RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = gen }
}

// New creates an Idle engine driving g. The engine takes ownership of g;
// callers must mutate it through the engine afterwards.
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		g = graph.New()
	}
	e := &Engine{
		graph:    g,
		dt:       DefaultDT,
		degraded: NewDegradedTracker(),
		pending:  newMutationQueue(),
		injected: make(map[graph.Endpoint]float64),
		runIDs:   UUIDv7Generator{},
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !validDT(e.dt) {
		return nil, NewDTError(e.dt)
	}

	e.clock = NewClock(e.dt)
	e.history = history.NewRecorder(e.historyCap)
	e.budget = NewTickBudget(e.maxTicks)
	e.runID = e.runIDs.Generate()

	for _, n := range g.Nodes() {
		n.Behavior.Reset()
	}
	return e, nil
}

// signal wakes the Run loop without blocking; a pending signal coalesces.
func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start begins automatic ticking. Allowed from Idle and Stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Idle && e.state != Stopped {
		return NewTransitionError("start", e.state)
	}
	e.setState(Running)
	return nil
}

// Pause suspends automatic ticking. Allowed from Running.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running {
		return NewTransitionError("pause", e.state)
	}
	e.setState(Paused)
	return nil
}

// Resume continues automatic ticking. Allowed from Paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Paused {
		return NewTransitionError("resume", e.state)
	}
	e.setState(Running)
	return nil
}

// Stop halts the simulation from any state and resets it: node state,
// port values, simulated time, history and degraded counters.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetLocked()
	e.setState(Stopped)
}

// Reset performs the same reset as Stop without changing state. Not
// allowed while Running.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Running {
		return NewTransitionError("reset", e.state)
	}
	e.resetLocked()
	return nil
}

// Close refuses further deferred mutations and stops any Run loop.
func (e *Engine) Close() {
	e.pending.Close()
	e.Stop()
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	slog.Debug("engine state change", "from", e.state.String(), "to", s.String(), "run_id", e.runID)
	e.state = s
	e.signal()
}

func (e *Engine) resetLocked() {
	for _, n := range e.graph.Nodes() {
		n.Behavior.Reset()
		for _, p := range n.Inputs {
			p.Value = 0
		}
		for _, p := range n.Outputs {
			p.Value = 0
		}
	}
	e.clock.Reset()
	e.history.ClearAll()
	e.degraded.Clear()
	e.budget.Reset()
	clear(e.injected)
	e.runID = e.runIDs.Generate()
	slog.Info("simulation reset", "run_id", e.runID)
}

// SetDT changes the step length. Not allowed while Running.
func (e *Engine) SetDT(dt float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Running {
		return NewTransitionError("change dt", e.state)
	}
	if !validDT(dt) {
		return NewDTError(dt)
	}
	e.clock.SetDT(dt)
	return nil
}

// Inject adds value to an input port for the next tick only, on top of
// whatever its connections deliver. Repeated injections before a tick add up.
func (e *Engine) Inject(id graph.NodeID, port string, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.graph.Port(graph.Endpoint{Node: id, Port: port})
	if err != nil {
		return err
	}
	if p.Direction != graph.Input {
		return &RuntimeError{
			Code:    ErrCodeInvalidInjection,
			Message: fmt.Sprintf("port %d.%s is an output", id, port),
		}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &RuntimeError{
			Code:    ErrCodeInvalidInjection,
			Message: fmt.Sprintf("injected value %g is not finite", value),
		}
	}
	e.injected[graph.Endpoint{Node: id, Port: port}] += value
	return nil
}

// structural runs a graph mutation unless the engine is Running.
func (e *Engine) structural(op string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Running {
		return &graph.Error{Code: graph.CodeGraphLocked, Message: op + " refused while running"}
	}
	if err := fn(); err != nil {
		return err
	}
	e.pruneLocked()
	return nil
}

// AddNode adds a node with the given behaviour.
func (e *Engine) AddNode(name string, b node.Behavior) (graph.NodeID, error) {
	var id graph.NodeID
	err := e.structural("add node", func() error {
		var err error
		id, err = e.graph.AddNode(name, b)
		return err
	})
	return id, err
}

// RemoveNode removes a node, its connections and its history.
func (e *Engine) RemoveNode(id graph.NodeID) error {
	return e.structural("remove node", func() error { return e.graph.RemoveNode(id) })
}

// Connect adds a connection.
func (e *Engine) Connect(src graph.NodeID, srcPort string, dst graph.NodeID, dstPort string) (graph.ConnectionID, error) {
	var id graph.ConnectionID
	err := e.structural("connect", func() error {
		var err error
		id, err = e.graph.Connect(src, srcPort, dst, dstPort)
		return err
	})
	return id, err
}

// Disconnect removes a connection.
func (e *Engine) Disconnect(id graph.ConnectionID) error {
	return e.structural("disconnect", func() error { return e.graph.Disconnect(id) })
}

// Reconfigure replaces a node's behaviour and ports.
func (e *Engine) Reconfigure(id graph.NodeID, b node.Behavior) error {
	return e.structural("reconfigure", func() error { return e.graph.Reconfigure(id, b) })
}

// Rename changes a node's display name. Names do not affect evaluation,
// so renaming is allowed in every state.
func (e *Engine) Rename(id graph.NodeID, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Rename(id, name)
}

// Defer queues a structural mutation for the start of the next tick. It is
// safe to call while Running. Returns false once the engine is closed.
func (e *Engine) Defer(label string, m Mutation) bool {
	return e.pending.Enqueue(pendingMutation{label: label, apply: m})
}

// PendingMutations returns the number of queued mutations.
func (e *Engine) PendingMutations() int { return e.pending.Len() }

// applyPendingLocked drains the mutation queue. A failing mutation is
// logged and skipped; the graph guarantees it left no partial change.
func (e *Engine) applyPendingLocked() {
	applied := false
	for {
		m, ok := e.pending.TryDequeue()
		if !ok {
			break
		}
		if err := m.apply(e.graph); err != nil {
			slog.Warn("deferred mutation failed",
				"mutation", m.label,
				"run_id", e.runID,
				"error", err,
			)
			continue
		}
		applied = true
	}
	if applied {
		e.pruneLocked()
	}
}

// pruneLocked drops history of output ports and degraded records of nodes
// that no longer exist, and injections aimed at vanished input ports.
func (e *Engine) pruneLocked() {
	for _, k := range e.history.Keys() {
		id := graph.NodeID(k.Node)
		if _, ok := e.graph.Node(id); !ok {
			e.history.Forget(k.Node)
			e.degraded.Forget(id)
			continue
		}
		if p, err := e.graph.Port(graph.Endpoint{Node: id, Port: k.Port}); err != nil || p.Direction != graph.Output {
			e.history.ForgetPort(k.Node, k.Port)
		}
	}
	for ep := range e.injected {
		if p, err := e.graph.Port(ep); err != nil || p.Direction != graph.Input {
			delete(e.injected, ep)
		}
	}
}
