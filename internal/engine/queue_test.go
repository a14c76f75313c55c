package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchbay/internal/graph"
)

func noop(*graph.Graph) error { return nil }

func TestMutationQueue_FIFO(t *testing.T) {
	q := newMutationQueue()

	for _, label := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(pendingMutation{label: label, apply: noop}))
	}

	for _, want := range []string{"A", "B", "C"} {
		m, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, m.label)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestMutationQueue_Len(t *testing.T) {
	q := newMutationQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(pendingMutation{label: "1", apply: noop})
	q.Enqueue(pendingMutation{label: "2", apply: noop})
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestMutationQueue_EnqueueAfterClose(t *testing.T) {
	q := newMutationQueue()
	q.Enqueue(pendingMutation{label: "before", apply: noop})
	q.Close()

	assert.False(t, q.Enqueue(pendingMutation{label: "after", apply: noop}), "enqueue after close should return false")

	m, ok := q.TryDequeue()
	require.True(t, ok, "queued mutations survive close")
	assert.Equal(t, "before", m.label)
}

func TestMutationQueue_ConcurrentProducers(t *testing.T) {
	q := newMutationQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(pendingMutation{label: "m", apply: noop})
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}
