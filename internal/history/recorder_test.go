package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRecorder(0).Capacity())
	assert.Equal(t, DefaultCapacity, NewRecorder(-5).Capacity())
	assert.Equal(t, 7, NewRecorder(7).Capacity())
}

func TestRecorder_SnapshotOldestFirst(t *testing.T) {
	r := NewRecorder(10)
	r.Record(1, "out", 0.1, 1)
	r.Record(1, "out", 0.2, 2)
	r.Record(1, "out", 0.3, 3)

	assert.Equal(t, []Sample{{0.1, 1}, {0.2, 2}, {0.3, 3}}, r.Snapshot(1, "out"))
	assert.Equal(t, 3, r.Len(1, "out"))
}

func TestRecorder_EvictsOldest(t *testing.T) {
	r := NewRecorder(3)
	for i := 1; i <= 5; i++ {
		r.Record(1, "out", float64(i), float64(i*10))
	}

	got := r.Snapshot(1, "out")
	require.Len(t, got, 3)
	assert.Equal(t, []Sample{{3, 30}, {4, 40}, {5, 50}}, got)
}

func TestRecorder_SnapshotIsCopy(t *testing.T) {
	r := NewRecorder(4)
	r.Record(1, "out", 1, 1)

	first := r.Snapshot(1, "out")
	first[0].Value = 99
	r.Record(1, "out", 2, 2)

	again := r.Snapshot(1, "out")
	assert.Equal(t, []Sample{{1, 1}, {2, 2}}, again, "snapshots do not alias or consume the buffer")
}

func TestRecorder_UnknownPort(t *testing.T) {
	r := NewRecorder(4)
	got := r.Snapshot(42, "nope")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, r.Len(42, "nope"))
}

func TestRecorder_KeysForgetClear(t *testing.T) {
	r := NewRecorder(4)
	r.Record(2, "out", 0, 0)
	r.Record(1, "y", 0, 0)
	r.Record(1, "x", 0, 0)

	assert.Equal(t, []Key{{1, "x"}, {1, "y"}, {2, "out"}}, r.Keys())

	r.Forget(1)
	assert.Equal(t, []Key{{2, "out"}}, r.Keys())

	r.ClearAll()
	assert.Empty(t, r.Keys())
	assert.Empty(t, r.Snapshot(2, "out"))
}

func TestRecorder_ConcurrentReaders(t *testing.T) {
	r := NewRecorder(50)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.Record(1, "out", float64(i), float64(i))
		}
	}()
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := r.Snapshot(1, "out")
				assert.LessOrEqual(t, len(s), 50)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len(1, "out"))
}
