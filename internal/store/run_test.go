package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/node"
	"github.com/roach88/patchbay/internal/patch"
)

func ep(n graph.NodeID, port string) graph.Endpoint { return graph.Endpoint{Node: n, Port: port} }

// feedbackDoc is an integrator fed by a constant and by a gain on its own
// output, plus a formula that always fails.
func feedbackDoc() *patch.Document {
	return &patch.Document{
		Name: "feedback",
		DT:   0.1,
		Nodes: []patch.NodeSpec{
			{ID: 1, Name: "src", Kind: node.KindConstant, Params: map[string]float64{"value": 1}},
			{ID: 2, Name: "integ", Kind: node.KindIntegrator},
			{ID: 3, Name: "damp", Kind: node.KindGain, Params: map[string]float64{"k": -0.5}},
			{ID: 4, Name: "bad", Kind: node.KindFormula, Outputs: []string{"z", "y"}, Formula: "y = sqrt(-1)\n"},
		},
		Connections: []patch.ConnectionSpec{
			{ID: 1, From: ep(1, "out"), To: ep(2, "in")},
			{ID: 2, From: ep(2, "out"), To: ep(3, "in")},
			{ID: 3, From: ep(3, "out"), To: ep(2, "in")},
		},
	}
}

func runLogged(t *testing.T, s *Store, doc *patch.Document, ticks int, injections []engine.Injection) *engine.Engine {
	t.Helper()
	log := NewRunLog(s, doc).WithInjections(injections)
	log.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	e, err := doc.NewEngine(engine.WithObserver(log), engine.WithRunIDs(engine.NewSequenceGenerator("run")))
	require.NoError(t, err)
	_, err = e.Script(context.Background(), ticks, injections)
	require.NoError(t, err)
	return e
}

func TestRunLog_RecordsRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := feedbackDoc()
	runLogged(t, s, doc, 5, nil)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "feedback", run.PatchName)
	assert.Equal(t, patch.MustHash(doc), run.PatchHash)
	assert.Equal(t, int64(5), run.Ticks)
	assert.Equal(t, 0.1, run.DT)
	assert.Equal(t, 2026, run.StartedAt.Year())
	assert.Equal(t, patch.MustHash(doc), patch.MustHash(run.Patch), "stored patch decodes to the same document")

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestReadTrace_OrderingAndFilters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	runLogged(t, s, feedbackDoc(), 3, nil)

	all, err := s.ReadTrace(ctx, "run-1", TraceFilter{})
	require.NoError(t, err)
	// 5 output ports per tick
	require.Len(t, all, 15)

	var order []string
	for _, sm := range all[:5] {
		order = append(order, sm.Port)
		assert.Equal(t, int64(1), sm.Tick)
	}
	assert.Equal(t, []string{"out", "out", "out", "y", "z"}, order, "ports sort by name within a node")

	integ, err := s.ReadTrace(ctx, "run-1", TraceFilter{Node: 2, Port: "out", FromTick: 2})
	require.NoError(t, err)
	require.Len(t, integ, 2)
	assert.Equal(t, int64(2), integ[0].Tick)
	assert.InDelta(t, 0.2, integ[0].Time, 1e-12)

	window, err := s.ReadTrace(ctx, "run-1", TraceFilter{Node: 1, ToTick: 2})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	none, err := s.ReadTrace(ctx, "missing", TraceFilter{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadDegraded(t *testing.T) {
	s := createTestStore(t)
	runLogged(t, s, feedbackDoc(), 4, nil)

	events, err := s.ReadDegraded(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Tick)
		assert.Equal(t, graph.NodeID(4), ev.Node)
		assert.Equal(t, "bad", ev.Name)
		assert.NotEmpty(t, ev.Error)
	}
}

func TestWriteTick_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteTick(context.Background(), engine.TickReport{RunID: "nope", Tick: 1})
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestWriteTick_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, "r", feedbackDoc(), time.Now()))

	report := engine.TickReport{RunID: "r", Tick: 1, Time: 0.1, Samples: []engine.PortSample{{Node: 1, Port: "out", Value: 1}}}
	require.NoError(t, s.WriteTick(ctx, report))
	require.NoError(t, s.WriteTick(ctx, report))
	require.NoError(t, s.WriteRun(ctx, "r", feedbackDoc(), time.Now()))

	trace, err := s.ReadTrace(ctx, "r", TraceFilter{})
	require.NoError(t, err)
	assert.Len(t, trace, 1)
}

func TestRunLog_NewRunAfterReset(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := runLogged(t, s, feedbackDoc(), 2, nil)

	e.Stop()
	e.TickN(ctx, 3)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].Ticks)
	assert.Equal(t, int64(3), runs[1].Ticks)
}

func TestReplay_Matches(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	injections := []engine.Injection{{At: 0, Node: 2, Port: "in", Value: 3}, {At: 4, Node: 3, Port: "in", Value: -1}}
	runLogged(t, s, feedbackDoc(), 20, injections)

	stored, err := s.ReadInjections(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, injections, stored)

	result, err := s.Replay(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, result.Divergence)
	assert.Equal(t, int64(20), result.Ticks)
}

func TestReplay_DetectsTampering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	runLogged(t, s, feedbackDoc(), 10, nil)

	_, err := s.DB().Exec(`UPDATE samples SET value = value + 1e-9 WHERE run_id = 'run-1' AND tick = 7 AND node_id = 2`)
	require.NoError(t, err)

	result, err := s.Replay(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, result.Divergence)
	assert.Equal(t, int64(7), result.Divergence.Tick)
	assert.Equal(t, graph.NodeID(2), result.Divergence.Node)
	assert.Equal(t, "out", result.Divergence.Port)
}

func TestReplay_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Replay(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
