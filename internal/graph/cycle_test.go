package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchbay/internal/node"
)

func TestAnalyzeCycles_NoCycles(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	k := addNode(t, g, "k", node.KindGain)
	connect(t, g, a, "out", k, "in")

	assert.Empty(t, g.AnalyzeCycles())
}

func TestAnalyzeCycles_BrokenByIntegrator(t *testing.T) {
	g := New()
	it := addNode(t, g, "position", node.KindIntegrator)
	k := addNode(t, g, "spring", node.KindGain)
	connect(t, g, it, "out", k, "in")
	connect(t, g, k, "out", it, "in")

	warnings := g.AnalyzeCycles()
	require.Len(t, warnings, 1)
	w := warnings[0]
	assert.Equal(t, LevelInfo, w.Level)
	assert.Equal(t, []NodeID{it, k, it}, w.Path)
	assert.Equal(t, []NodeID{it}, w.Breakers)
	assert.Contains(t, w.Message, "position(1) -> spring(2) -> position(1)")
}

func TestAnalyzeCycles_StatelessHazard(t *testing.T) {
	g := New()
	x := addNode(t, g, "x", node.KindGain)
	y := addNode(t, g, "y", node.KindGain)
	z := addNode(t, g, "z", node.KindGain)
	connect(t, g, x, "out", y, "in")
	connect(t, g, y, "out", z, "in")
	connect(t, g, z, "out", x, "in")

	warnings := g.AnalyzeCycles()
	require.Len(t, warnings, 1)
	assert.Equal(t, LevelHazard, warnings[0].Level)
	assert.Equal(t, []NodeID{x, y, z, x}, warnings[0].Path)
	assert.Empty(t, warnings[0].Breakers)
	assert.Contains(t, warnings[0].Message, "one-tick lag")
}

func TestAnalyzeCycles_SelfEdge(t *testing.T) {
	g := New()
	d := addNode(t, g, "d", node.KindDelay)
	connect(t, g, d, "out", d, "in")

	warnings := g.AnalyzeCycles()
	require.Len(t, warnings, 1)
	assert.Equal(t, []NodeID{d, d}, warnings[0].Path)
	assert.Equal(t, LevelInfo, warnings[0].Level)
}

func TestAnalyzeCycles_SeveralOrderedByLowestID(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindGain)
	b := addNode(t, g, "b", node.KindGain)
	c := addNode(t, g, "c", node.KindIntegrator)
	d := addNode(t, g, "d", node.KindGain)
	connect(t, g, c, "out", d, "in")
	connect(t, g, d, "out", c, "in")
	connect(t, g, a, "out", b, "in")
	connect(t, g, b, "out", a, "in")

	warnings := g.AnalyzeCycles()
	require.Len(t, warnings, 2)
	assert.Equal(t, LevelHazard, warnings[0].Level)
	assert.Equal(t, a, warnings[0].Path[0])
	assert.Equal(t, LevelInfo, warnings[1].Level)
	assert.Equal(t, c, warnings[1].Path[0])
}
