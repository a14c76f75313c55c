// Package history keeps a bounded trace of output port values.
//
// Each (node id, output port) pair has its own fixed-capacity ring buffer;
// when it is full the oldest sample is evicted first.
package history

import (
	"sort"
	"sync"
)

// DefaultCapacity is the number of samples kept per port when the recorder
// is built with a non-positive capacity.
const DefaultCapacity = 1000

// Key identifies one recorded output port.
type Key struct {
	Node int64
	Port string
}

// Sample is one recorded value at a simulated time.
type Sample struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

type ring struct {
	buf   []Sample
	start int
	size  int
}

func (r *ring) push(s Sample) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) snapshot() []Sample {
	out := make([]Sample, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Recorder holds one ring buffer per key.
//
// Thread-safety: Recorder is safe for concurrent use. Snapshots are copies
// and never alias the live buffers.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	rings    map[Key]*ring
}

// NewRecorder creates a recorder keeping capacity samples per port.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		capacity: capacity,
		rings:    make(map[Key]*ring),
	}
}

// Capacity returns the per-port sample limit.
func (r *Recorder) Capacity() int { return r.capacity }

// Record appends a sample for the given port.
func (r *Recorder) Record(node int64, port string, time, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Key{Node: node, Port: port}
	rg, ok := r.rings[k]
	if !ok {
		rg = &ring{buf: make([]Sample, r.capacity)}
		r.rings[k] = rg
	}
	rg.push(Sample{Time: time, Value: value})
}

// Snapshot returns the samples for a port, oldest first. Unknown ports
// yield an empty slice. Taking a snapshot does not consume anything.
func (r *Recorder) Snapshot(node int64, port string) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rg, ok := r.rings[Key{Node: node, Port: port}]
	if !ok {
		return []Sample{}
	}
	return rg.snapshot()
}

// Len returns the number of samples held for a port.
func (r *Recorder) Len(node int64, port string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rg, ok := r.rings[Key{Node: node, Port: port}]; ok {
		return rg.size
	}
	return 0
}

// Keys returns every recorded key ordered by node id, then port name.
func (r *Recorder) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.rings))
	for k := range r.rings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Node != keys[j].Node {
			return keys[i].Node < keys[j].Node
		}
		return keys[i].Port < keys[j].Port
	})
	return keys
}

// Forget drops every buffer belonging to a node.
func (r *Recorder) Forget(node int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.rings {
		if k.Node == node {
			delete(r.rings, k)
		}
	}
}

// ForgetPort drops the buffer of one port.
func (r *Recorder) ForgetPort(node int64, port string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rings, Key{Node: node, Port: port})
}

// ClearAll drops every buffer.
func (r *Recorder) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rings = make(map[Key]*ring)
}
