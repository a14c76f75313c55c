package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchbay/internal/node"
)

func behavior(t *testing.T, kind node.Kind, cfg node.Config) node.Behavior {
	t.Helper()
	b, err := node.New(kind, cfg)
	require.NoError(t, err)
	return b
}

func addNode(t *testing.T, g *Graph, name string, kind node.Kind) NodeID {
	t.Helper()
	id, err := g.AddNode(name, behavior(t, kind, node.Config{}))
	require.NoError(t, err)
	return id
}

func connect(t *testing.T, g *Graph, src NodeID, srcPort string, dst NodeID, dstPort string) ConnectionID {
	t.Helper()
	id, err := g.Connect(src, srcPort, dst, dstPort)
	require.NoError(t, err)
	return id
}

// dupPorts declares the same name on both sides.
type dupPorts struct{ node.Behavior }

func (dupPorts) Ports() ([]string, []string) { return []string{"x"}, []string{"x"} }

// blankPort declares an empty input name.
type blankPort struct{ node.Behavior }

func (blankPort) Ports() ([]string, []string) { return []string{" "}, []string{"out"} }

func TestAddNode_AssignsAscendingIDs(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	b := addNode(t, g, "b", node.KindConstant)
	c := addNode(t, g, "a", node.KindConstant)

	assert.Equal(t, NodeID(1), a)
	assert.Equal(t, NodeID(2), b)
	assert.Equal(t, NodeID(3), c, "names need not be unique")
	assert.Equal(t, 3, g.Len())

	require.NoError(t, g.RemoveNode(c))
	d := addNode(t, g, "d", node.KindConstant)
	assert.Equal(t, NodeID(4), d, "ids are never reused")
}

func TestAddNode_PortsFromBehavior(t *testing.T) {
	g := New()
	id, err := g.AddNode("s", behavior(t, node.KindSum, node.Config{Inputs: []string{"x", "y", "z"}}))
	require.NoError(t, err)

	n, ok := g.Node(id)
	require.True(t, ok)
	require.Len(t, n.Inputs, 3)
	assert.Equal(t, "x", n.Inputs[0].Name)
	assert.Equal(t, "z", n.Inputs[2].Name)
	assert.Equal(t, Input, n.Inputs[0].Direction)
	require.Len(t, n.Outputs, 1)
	assert.Equal(t, Output, n.Output("out").Direction)
	assert.Equal(t, node.KindSum, n.Kind())
}

func TestAddNode_StructuralErrors(t *testing.T) {
	g := New()
	base := behavior(t, node.KindGain, node.Config{})

	_, err := g.AddNode("dup", dupPorts{base})
	assert.ErrorIs(t, err, ErrDuplicatePortName)

	_, err = g.AddNode("blank", blankPort{base})
	assert.ErrorIs(t, err, ErrInvalidPortName)

	_, err = g.AddNode("nil", nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, 0, g.Len(), "failed adds leave no node behind")
	assert.Equal(t, uint64(0), g.Version())
}

func TestConnect_Errors(t *testing.T) {
	g := New()
	c := addNode(t, g, "c", node.KindConstant)
	gn := addNode(t, g, "g", node.KindGain)

	tests := []struct {
		name     string
		src      NodeID
		srcPort  string
		dst      NodeID
		dstPort  string
		expected error
	}{
		{"missing source node", 99, "out", gn, "in", ErrNotFound},
		{"missing destination node", c, "out", 99, "in", ErrNotFound},
		{"missing source port", c, "nope", gn, "in", ErrPortNotFound},
		{"missing destination port", c, "out", gn, "nope", ErrPortNotFound},
		{"from an input", gn, "in", gn, "in", ErrSelfLoop},
		{"source is input", gn, "in", c, "out", ErrWrongDirection},
		{"destination is output", c, "out", gn, "out", ErrWrongDirection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Connect(tt.src, tt.srcPort, tt.dst, tt.dstPort)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
			assert.True(t, IsStructural(err))
		})
	}
	assert.Empty(t, g.Connections())
}

func TestConnect_DuplicatePairRejected(t *testing.T) {
	g := New()
	c := addNode(t, g, "c", node.KindConstant)
	gn := addNode(t, g, "g", node.KindGain)

	connect(t, g, c, "out", gn, "in")
	_, err := g.Connect(c, "out", gn, "in")
	assert.ErrorIs(t, err, ErrDuplicateConnection)
	assert.Len(t, g.Connections(), 1)
}

func TestConnect_AllowsNodeCycles(t *testing.T) {
	g := New()
	it := addNode(t, g, "it", node.KindIntegrator)
	gn := addNode(t, g, "g", node.KindGain)

	connect(t, g, it, "out", gn, "in")
	connect(t, g, gn, "out", it, "in")

	d := addNode(t, g, "d", node.KindDelay)
	connect(t, g, d, "out", d, "in")
	assert.Len(t, g.Connections(), 3)
}

func TestConnect_FanInAndFanOut(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	b := addNode(t, g, "b", node.KindConstant)
	s := addNode(t, g, "s", node.KindSum)
	x := addNode(t, g, "x", node.KindGain)

	connect(t, g, a, "out", s, "a")
	connect(t, g, b, "out", s, "a")
	connect(t, g, a, "out", x, "in")

	assert.Len(t, g.Incoming(s), 2)
	assert.Len(t, g.Outgoing(a), 2)
}

func TestRemoveNode_Cascades(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	s := addNode(t, g, "s", node.KindSum)
	out := addNode(t, g, "out", node.KindGain)
	connect(t, g, a, "out", s, "a")
	connect(t, g, s, "out", out, "in")
	keep := connect(t, g, a, "out", out, "in")
	require.NoError(t, g.Disconnect(keep))
	keep = connect(t, g, a, "out", s, "b")

	require.NoError(t, g.RemoveNode(s))

	for _, c := range g.Connections() {
		assert.NotEqual(t, s, c.From.Node)
		assert.NotEqual(t, s, c.To.Node)
	}
	_, found := g.Connection(keep)
	assert.False(t, found)

	_, err := g.Connect(a, "out", s, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	err = g.RemoveNode(s)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisconnect(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	gn := addNode(t, g, "g", node.KindGain)
	id := connect(t, g, a, "out", gn, "in")

	require.NoError(t, g.Disconnect(id))
	assert.Empty(t, g.Connections())
	assert.ErrorIs(t, g.Disconnect(id), ErrNotFound)
}

func TestRename(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)

	require.NoError(t, g.Rename(a, "source"))
	n, _ := g.Node(a)
	assert.Equal(t, "source", n.Name)

	found, ok := g.NodeByName("source")
	require.True(t, ok)
	assert.Equal(t, a, found.ID)

	assert.ErrorIs(t, g.Rename(42, "x"), ErrNotFound)
}

func TestReconfigure_DetachesRemovedPorts(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	b := addNode(t, g, "b", node.KindConstant)
	s := addNode(t, g, "s", node.KindSum)
	sink := addNode(t, g, "sink", node.KindGain)
	keepA := connect(t, g, a, "out", s, "a")
	dropB := connect(t, g, b, "out", s, "b")
	keepOut := connect(t, g, s, "out", sink, "in")

	n, _ := g.Node(s)
	n.Input("a").Value = 4

	err := g.Reconfigure(s, behavior(t, node.KindSum, node.Config{Inputs: []string{"a", "c"}}))
	require.NoError(t, err)

	_, ok := g.Connection(keepA)
	assert.True(t, ok)
	_, ok = g.Connection(keepOut)
	assert.True(t, ok)
	_, ok = g.Connection(dropB)
	assert.False(t, ok)

	n, _ = g.Node(s)
	assert.Equal(t, 4.0, n.Input("a").Value, "surviving port keeps its value")
	assert.NotNil(t, n.Input("c"))
	assert.Nil(t, n.Input("b"))
	assert.Equal(t, "s", n.Name)
}

func TestReconfigure_DirectionChangeDetaches(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	f := addNode(t, g, "f", node.KindGain)
	id := connect(t, g, a, "out", f, "in")

	// "in" becomes an output.
	err := g.Reconfigure(f, behavior(t, node.KindFormula, node.Config{
		Inputs:  []string{"x"},
		Outputs: []string{"in"},
		Formula: "in = x\n",
	}))
	require.NoError(t, err)
	_, ok := g.Connection(id)
	assert.False(t, ok)
}

func TestReconfigure_FailureLeavesGraphUntouched(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)
	gn := addNode(t, g, "g", node.KindGain)
	connect(t, g, a, "out", gn, "in")
	version := g.Version()

	err := g.Reconfigure(gn, dupPorts{behavior(t, node.KindGain, node.Config{})})
	assert.ErrorIs(t, err, ErrDuplicatePortName)
	assert.Equal(t, version, g.Version())
	assert.Len(t, g.Connections(), 1)
	n, _ := g.Node(gn)
	assert.Equal(t, node.KindGain, n.Kind())

	assert.ErrorIs(t, g.Reconfigure(77, behavior(t, node.KindGain, node.Config{})), ErrNotFound)
}

func TestRestore_KeepsIDs(t *testing.T) {
	g := New()
	require.NoError(t, g.Restore(5, "five", behavior(t, node.KindConstant, node.Config{})))
	require.NoError(t, g.Restore(2, "two", behavior(t, node.KindGain, node.Config{})))
	require.NoError(t, g.RestoreConnection(9, Endpoint{5, "out"}, Endpoint{2, "in"}))

	err := g.Restore(5, "again", behavior(t, node.KindConstant, node.Config{}))
	assert.ErrorIs(t, err, ErrDuplicateID)
	err = g.RestoreConnection(9, Endpoint{5, "out"}, Endpoint{2, "in"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	next := addNode(t, g, "next", node.KindConstant)
	assert.Equal(t, NodeID(6), next)
	cid := connect(t, g, next, "out", 2, "in")
	assert.Equal(t, ConnectionID(10), cid)
}

func TestPort_Resolve(t *testing.T) {
	g := New()
	a := addNode(t, g, "a", node.KindConstant)

	p, err := g.Port(Endpoint{a, "out"})
	require.NoError(t, err)
	assert.Equal(t, Output, p.Direction)

	_, err = g.Port(Endpoint{a, "in"})
	assert.ErrorIs(t, err, ErrPortNotFound)
	_, err = g.Port(Endpoint{9, "out"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: CodeWrongDirection, Message: "bad", Node: 3, Port: "in"}
	assert.Equal(t, "WRONG_DIRECTION: bad (node=3, port=in)", err.Error())
	assert.Equal(t, CodeWrongDirection, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("other")))
	assert.False(t, errors.Is(err, ErrNotFound))
}
