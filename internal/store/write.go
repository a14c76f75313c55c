package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/patch"
)

// Run is one stored simulation run.
type Run struct {
	ID        string
	PatchName string
	PatchHash string
	Patch     *patch.Document
	DT        float64
	StartedAt time.Time // informational only
	Ticks     int64
}

// WriteRun records a run and the patch it executes. Writing the same run
// id twice is a no-op.
func (s *Store) WriteRun(ctx context.Context, runID string, doc *patch.Document, startedAt time.Time) error {
	hash, err := patch.Hash(doc)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	patchJSON, err := patch.MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	dt := doc.DT
	if dt == 0 {
		dt = engine.DefaultDT
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, patch_name, patch_hash, patch_json, dt, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		runID,
		doc.Name,
		hash,
		string(patchJSON),
		dt,
		startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteTick records every sample and degraded node of one tick in a single
// transaction and advances the run's tick count. The run must exist.
// Re-writing a tick is a no-op.
func (s *Store) WriteTick(ctx context.Context, report engine.TickReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write tick: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET ticks = MAX(ticks, ?) WHERE id = ?
	`, report.Tick, report.RunID)
	if err != nil {
		return fmt.Errorf("write tick: update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("write tick: %w: %s", ErrRunNotFound, report.RunID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, tick, time, node_id, port, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write tick: prepare: %w", err)
	}
	defer stmt.Close()

	for _, sm := range report.Samples {
		if _, err := stmt.ExecContext(ctx, report.RunID, report.Tick, report.Time, int64(sm.Node), sm.Port, sm.Value); err != nil {
			return fmt.Errorf("write tick %d sample %d.%s: %w", report.Tick, sm.Node, sm.Port, err)
		}
	}

	for _, d := range report.Degraded {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO degraded_events (run_id, tick, node_id, node_name, error)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, report.RunID, report.Tick, int64(d.Node), d.Name, d.Error)
		if err != nil {
			return fmt.Errorf("write tick %d degraded node %d: %w", report.Tick, d.Node, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write tick: commit: %w", err)
	}
	return nil
}

// WriteInjections records the scheduled injections of a run, keeping their
// order. The run must exist. Calling it again replaces nothing; rows with
// an existing position are skipped.
func (s *Store) WriteInjections(ctx context.Context, runID string, injections []engine.Injection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write injections: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for i, inj := range injections {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO injections (run_id, seq, at_tick, node_id, port, value)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, runID, i, inj.At, int64(inj.Node), inj.Port, inj.Value)
		if err != nil {
			return fmt.Errorf("write injection %d of run %s: %w", i, runID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write injections: commit: %w", err)
	}
	return nil
}
