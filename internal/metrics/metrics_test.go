package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/node"
	"github.com/roach88/patchbay/internal/testutil"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r.TicksTotal)
	assert.NotNil(t, r.DegradedTotal)
	assert.NotNil(t, r.GetPrometheusRegistry())
}

func TestRegistry_ObservesEngine(t *testing.T) {
	p := testutil.NewPatch(t)
	p.Node("c", node.KindConstant, testutil.Params{"value": 2.5})
	p.Formula("bad", nil, []string{"y"}, "y = sqrt(-1)\n")

	r := NewRegistry()
	e, err := engine.New(p.Graph, engine.WithDT(0.5), engine.WithObserver(r), engine.WithRunIDs(testutil.FixedRunID("m")))
	require.NoError(t, err)
	e.TickN(context.Background(), 4)

	assert.Equal(t, 4.0, counterValue(t, r.TicksTotal))
	assert.Equal(t, 1.0, counterValue(t, r.RunsTotal))
	assert.Equal(t, 2.0, counterValue(t, r.SimTime))
	assert.Equal(t, 2.0, counterValue(t, r.Nodes))

	degraded, err := r.DegradedTotal.GetMetricWithLabelValues("2", "bad")
	require.NoError(t, err)
	assert.Equal(t, 4.0, counterValue(t, degraded))

	value, err := r.PortValue.GetMetricWithLabelValues("1", "out")
	require.NoError(t, err)
	assert.Equal(t, 2.5, counterValue(t, value))

	var h dto.Metric
	require.NoError(t, r.TickDuration.Write(&h))
	assert.Equal(t, uint64(4), h.Histogram.GetSampleCount())
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.TickCompleted(context.Background(), engine.TickReport{
		RunID:   "r1",
		Tick:    1,
		Time:    0.1,
		Nodes:   1,
		Samples: []engine.PortSample{{Node: 1, Port: "out", Value: 3}},
		Elapsed: time.Millisecond,
	}))

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "patchbay_ticks_total 1"), text)
	assert.Contains(t, text, `patchbay_port_value{node="1",port="out"} 3`)
}

func TestRegistry_Serve(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
