package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/patch"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Sample is one stored port value.
type Sample struct {
	Tick  int64        `json:"tick"`
	Time  float64      `json:"time"`
	Node  graph.NodeID `json:"node"`
	Port  string       `json:"port"`
	Value float64      `json:"value"`
}

// DegradedEvent is one stored compute failure.
type DegradedEvent struct {
	Tick  int64        `json:"tick"`
	Node  graph.NodeID `json:"node"`
	Name  string       `json:"name"`
	Error string       `json:"error"`
}

// TraceFilter narrows ReadTrace. Zero values match everything.
type TraceFilter struct {
	Node     graph.NodeID
	Port     string
	FromTick int64
	ToTick   int64 // inclusive; 0 means no upper bound
}

// ReadRun returns a stored run with its patch decoded.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patch_name, patch_hash, patch_json, dt, started_at, ticks
		FROM runs
		WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListRuns returns every run ordered by id. UUIDv7 run ids sort by
// creation time.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patch_name, patch_hash, patch_json, dt, started_at, ticks
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		patchJSON string
		started   string
	)
	if err := row.Scan(&run.ID, &run.PatchName, &run.PatchHash, &patchJSON, &run.DT, &started, &run.Ticks); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	doc, err := patch.Decode(strings.NewReader(patchJSON), patch.FormatJSON)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: stored patch: %w", run.ID, err)
	}
	run.Patch = doc
	if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
		run.StartedAt = t
	}
	return run, nil
}

// ReadTrace returns the stored samples of a run ordered by tick, node id
// and port name.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadTrace(ctx context.Context, runID string, f TraceFilter) ([]Sample, error) {
	query := `
		SELECT tick, time, node_id, port, value
		FROM samples
		WHERE run_id = ?`
	args := []any{runID}
	if f.Node != 0 {
		query += ` AND node_id = ?`
		args = append(args, int64(f.Node))
	}
	if f.Port != "" {
		query += ` AND port = ?`
		args = append(args, f.Port)
	}
	if f.FromTick > 0 {
		query += ` AND tick >= ?`
		args = append(args, f.FromTick)
	}
	if f.ToTick > 0 {
		query += ` AND tick <= ?`
		args = append(args, f.ToTick)
	}
	query += `
		ORDER BY tick ASC, node_id ASC, port COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var (
			sm   Sample
			node int64
		)
		if err := rows.Scan(&sm.Tick, &sm.Time, &node, &sm.Port, &sm.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sm.Node = graph.NodeID(node)
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// ReadDegraded returns the compute failures of a run ordered by tick and
// node id.
func (s *Store) ReadDegraded(ctx context.Context, runID string) ([]DegradedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, node_id, node_name, error
		FROM degraded_events
		WHERE run_id = ?
		ORDER BY tick ASC, node_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query degraded events: %w", err)
	}
	defer rows.Close()

	events := []DegradedEvent{}
	for rows.Next() {
		var (
			ev   DegradedEvent
			node int64
		)
		if err := rows.Scan(&ev.Tick, &node, &ev.Name, &ev.Error); err != nil {
			return nil, fmt.Errorf("scan degraded event: %w", err)
		}
		ev.Node = graph.NodeID(node)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate degraded events: %w", err)
	}
	return events, nil
}

// ReadReports regroups a run's samples into per-tick reports, in the
// order ReadTrace returns them.
func (s *Store) ReadReports(ctx context.Context, runID string) ([]engine.TickReport, error) {
	samples, err := s.ReadTrace(ctx, runID, TraceFilter{})
	if err != nil {
		return nil, err
	}
	var reports []engine.TickReport
	for _, sm := range samples {
		if len(reports) == 0 || reports[len(reports)-1].Tick != sm.Tick {
			reports = append(reports, engine.TickReport{RunID: runID, Tick: sm.Tick, Time: sm.Time})
		}
		r := &reports[len(reports)-1]
		r.Samples = append(r.Samples, engine.PortSample{Node: sm.Node, Port: sm.Port, Value: sm.Value})
	}
	return reports, nil
}

// ReadInjections returns the scheduled injections of a run in the order
// they were written.
func (s *Store) ReadInjections(ctx context.Context, runID string) ([]engine.Injection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at_tick, node_id, port, value
		FROM injections
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query injections: %w", err)
	}
	defer rows.Close()

	injections := []engine.Injection{}
	for rows.Next() {
		var (
			inj  engine.Injection
			node int64
		)
		if err := rows.Scan(&inj.At, &node, &inj.Port, &inj.Value); err != nil {
			return nil, fmt.Errorf("scan injection: %w", err)
		}
		inj.Node = graph.NodeID(node)
		injections = append(injections, inj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate injections: %w", err)
	}
	return injections, nil
}
