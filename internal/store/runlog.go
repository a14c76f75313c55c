package store

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/patch"
)

// RunLog records an engine's ticks. It registers each run id the first
// time a report carries it, so runs started by a reset are logged too.
//
// RunLog implements engine.Observer.
type RunLog struct {
	store      *Store
	doc        *patch.Document
	injections []engine.Injection
	now        func() time.Time

	mu   sync.Mutex
	seen map[string]bool
}

// NewRunLog creates an observer that logs runs of doc into s.
func NewRunLog(s *Store, doc *patch.Document) *RunLog {
	return &RunLog{store: s, doc: doc, now: time.Now, seen: make(map[string]bool)}
}

// WithInjections sets the injection schedule recorded with every run, so
// Replay can feed the same values. Returns l for chaining.
func (l *RunLog) WithInjections(injections []engine.Injection) *RunLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injections = injections
	return l
}

// TickCompleted implements engine.Observer.
func (l *RunLog) TickCompleted(ctx context.Context, report engine.TickReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.seen[report.RunID] {
		if err := l.store.WriteRun(ctx, report.RunID, l.doc, l.now()); err != nil {
			return err
		}
		if err := l.store.WriteInjections(ctx, report.RunID, l.injections); err != nil {
			return err
		}
		l.seen[report.RunID] = true
	}
	return l.store.WriteTick(ctx, report)
}

// Runs returns how many run ids have been logged.
func (l *RunLog) Runs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
