package engine

import (
	"sync"

	"github.com/roach88/patchbay/internal/graph"
)

// Mutation is a structural change applied to the graph at a tick boundary.
type Mutation func(g *graph.Graph) error

// pendingMutation pairs a mutation with a label for logs.
type pendingMutation struct {
	label string
	apply Mutation
}

// mutationQueue is a thread-safe FIFO of deferred mutations.
//
// Editors enqueue from any goroutine while the simulation runs; the engine
// drains the queue at the start of the next tick, so a tick never sees a
// half-applied edit.
type mutationQueue struct {
	mu      sync.Mutex
	pending []pendingMutation
	closed  bool
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{pending: make([]pendingMutation, 0, 8)}
}

// Enqueue adds a mutation to the back of the queue.
// Returns false if the queue is closed.
func (q *mutationQueue) Enqueue(m pendingMutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, m)
	return true
}

// TryDequeue removes and returns the front mutation, if any.
func (q *mutationQueue) TryDequeue() (pendingMutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return pendingMutation{}, false
	}
	m := q.pending[0]
	// Release the closure so the backing array does not pin it.
	q.pending[0] = pendingMutation{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return m, true
}

// Len returns the number of queued mutations.
func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close refuses further mutations. Queued ones stay until drained.
func (q *mutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
