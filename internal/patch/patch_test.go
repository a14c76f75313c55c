package patch

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/node"
)

func TestLoadFile_YAML(t *testing.T) {
	doc, err := LoadFile("testdata/sum.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sum", doc.Name)
	assert.Equal(t, 0.5, doc.DT)
	assert.Equal(t, 16, doc.HistoryCapacity)
	require.Len(t, doc.Nodes, 3)
	assert.Equal(t, node.KindSum, doc.Nodes[2].Kind)
	assert.Equal(t, graph.Endpoint{Node: 2, Port: "out"}, doc.Connections[1].From)

	e, err := doc.NewEngine()
	require.NoError(t, err)
	assert.Equal(t, 0.5, e.DT())
	assert.Equal(t, 16, e.HistoryCapacity())

	e.Tick(context.Background())
	v, err := e.PortValue(3, "out")
	require.NoError(t, err)
	assert.Equal(t, 8.0, v)
}

func TestLoadFile_YAMLRejectsUnknownFields(t *testing.T) {
	_, err := LoadFile("testdata/unknown_field.yaml")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeDecode, le.Code)
	assert.Contains(t, le.Message, "speed")
}

func TestLoadFile_CUE(t *testing.T) {
	doc, err := LoadFile("testdata/spring.cue")
	require.NoError(t, err)

	assert.Equal(t, "spring", doc.Name)
	assert.Equal(t, 0.01, doc.DT)

	names := make([]string, len(doc.Nodes))
	for i, n := range doc.Nodes {
		names[i] = n.Name
		assert.Equal(t, int64(i+1), n.ID, "ids follow declaration order")
	}
	assert.Equal(t, []string{"kick", "force", "vel", "pos"}, names)

	force, ok := doc.NodeByName("force")
	require.True(t, ok)
	assert.Equal(t, node.KindFormula, force.Kind)
	assert.Equal(t, []string{"x", "v", "push"}, force.Inputs)

	pos, _ := doc.NodeByName("pos")
	assert.Equal(t, map[string]float64{"initial": 1}, pos.Params)

	require.Len(t, doc.Connections, 5)
	assert.Equal(t, ConnectionSpec{ID: 2, From: graph.Endpoint{Node: 2, Port: "a"}, To: graph.Endpoint{Node: 3, Port: "in"}}, doc.Connections[1])

	_, err = Build(doc)
	require.NoError(t, err)
}

func TestLoadFile_CUEWithSeveralPatches(t *testing.T) {
	_, err := LoadFile("testdata/two.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares 2 patches")

	docs, err := LoadCUE("testdata/two.cue")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Name)
	assert.Equal(t, "b", docs[1].Name)
}

func TestParseCUE_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no patch", `other: 1`, "no patch declared"},
		{"bad kind", `patch: p: nodes: n: kind: "flux"`, "unknown node kind"},
		{"bad ref", `patch: p: {nodes: n: kind: "constant", cables: [{from: "n", to: "m.in"}]}`, "must be node.port"},
		{"undeclared", `patch: p: {nodes: n: kind: "constant", cables: [{from: "n.out", to: "m.in"}]}`, "undeclared node"},
		{"syntax", `patch: {`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCUE("test.cue", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile("testdata/missing.yaml")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)

	_, err = LoadFile("patch_test.go")
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeFormat, le.Code)
}

func TestRoundTrip_PreservesIDs(t *testing.T) {
	g := graph.New()
	add := func(name string, kind node.Kind, cfg node.Config) graph.NodeID {
		b, err := node.New(kind, cfg)
		require.NoError(t, err)
		id, err := g.AddNode(name, b)
		require.NoError(t, err)
		return id
	}
	a := add("a", node.KindConstant, node.Config{Params: map[string]float64{"value": 2}})
	gone := add("gone", node.KindConstant, node.Config{})
	f := add("f", node.KindFormula, node.Config{Inputs: []string{"x"}, Outputs: []string{"y"}, Formula: "y = x * 3\n"})
	require.NoError(t, g.RemoveNode(gone))
	_, err := g.Connect(a, "out", f, "x")
	require.NoError(t, err)

	doc := FromGraph("rt", g, 0.25, 50)
	dir := t.TempDir()

	for _, name := range []string{"rt.yaml", "rt.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteFile(path, doc))

			loaded, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, doc, loaded)
			assert.Equal(t, MustHash(doc), MustHash(loaded))

			rebuilt, err := Build(loaded)
			require.NoError(t, err)
			_, ok := rebuilt.Node(gone)
			assert.False(t, ok, "removed id stays unused")
			n, ok := rebuilt.Node(f)
			require.True(t, ok)
			assert.Equal(t, "y = x * 3\n", n.Behavior.Config().Formula)

			next, err := rebuilt.AddNode("new", n.Behavior)
			require.NoError(t, err)
			assert.Greater(t, next, f)
		})
	}
}

func TestEncode_RejectsCUE(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, &Document{}, FormatCUE)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeFormat, le.Code)
}

func TestValidate_Codes(t *testing.T) {
	out := func(n int64) graph.Endpoint { return graph.Endpoint{Node: graph.NodeID(n), Port: "out"} }
	in := func(n int64) graph.Endpoint { return graph.Endpoint{Node: graph.NodeID(n), Port: "in"} }

	doc := &Document{
		DT:              -1,
		HistoryCapacity: -5,
		Nodes: []NodeSpec{
			{ID: 1, Name: "c", Kind: node.KindConstant},
			{ID: 2, Name: "g", Kind: node.KindGain},
			{ID: 0, Name: "zero", Kind: node.KindGain},
			{ID: 2, Name: "again", Kind: node.KindGain},
			{ID: 4, Name: "weird", Kind: "flux"},
			{ID: 5, Name: "badparam", Kind: node.KindGain, Params: map[string]float64{"q": 1}},
		},
		Connections: []ConnectionSpec{
			{ID: 1, From: out(1), To: in(2)},
			{ID: 1, From: out(1), To: in(2)},
			{ID: 0, From: out(1), To: in(2)},
			{ID: 3, From: out(9), To: in(2)},
			{ID: 4, From: out(1), To: graph.Endpoint{Node: 2, Port: "nope"}},
			{ID: 5, From: out(1), To: out(2)},
			{ID: 6, From: out(2), To: out(2)},
			{ID: 7, From: out(1), To: in(2)},
		},
	}

	var codes []string
	for _, e := range Validate(doc) {
		codes = append(codes, e.Code)
	}
	assert.Equal(t, []string{
		ErrInvalidDT,
		ErrInvalidHistory,
		ErrInvalidNodeID,
		ErrDuplicateNodeID,
		ErrUnknownKind,
		ErrInvalidNodeConfig,
		ErrInvalidConnectionID,
		ErrInvalidConnectionID,
		ErrUnknownNode,
		ErrUnknownPort,
		ErrWrongDirection,
		ErrSelfLoop,
		ErrDuplicateConnection,
	}, codes)
}

func TestBuild_AggregatesErrors(t *testing.T) {
	doc := &Document{Nodes: []NodeSpec{
		{ID: 1, Kind: "flux"},
		{ID: 2, Kind: node.KindGain, Inputs: []string{"a", "b"}},
	}}
	_, err := Build(doc)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)

	var ve ValidationError
	require.True(t, errors.As(merr.Errors[1], &ve))
	assert.Equal(t, ErrInvalidNodeConfig, ve.Code)
	assert.Equal(t, "nodes[1]", ve.Field)
	assert.Contains(t, ve.Error(), "[E206] nodes[1]")
}

func TestValidate_EmptyDocumentIsValid(t *testing.T) {
	assert.Empty(t, Validate(&Document{}))
}
