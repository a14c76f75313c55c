package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/patchbay/internal/engine"
	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/patch"
)

// loadPatch reads a patch file and maps failures to a command error with
// the loader's code.
func loadPatch(f *OutputFormatter, path string) (*patch.Document, error) {
	doc, err := patch.LoadFile(path)
	if err != nil {
		code, msg := patch.ErrCodeGeneric, err.Error()
		var loadErr *patch.LoadError
		if errors.As(err, &loadErr) {
			code, msg = loadErr.Code, loadErr.Error()
		}
		_ = f.Error(code, msg, nil)
		return nil, WrapExitError(ExitCommandError, "failed to load patch", err)
	}
	f.VerboseLog("loaded patch %q: %d nodes, %d connections", doc.Name, len(doc.Nodes), len(doc.Connections))
	return doc, nil
}

// buildEngine builds doc and reports validation failures the way
// validate does.
func buildEngine(f *OutputFormatter, doc *patch.Document, opts ...engine.Option) (*engine.Engine, error) {
	if errs := patch.Validate(doc); len(errs) > 0 {
		return nil, outputValidationErrors(f, ValidationResult{Patch: doc.Name, Errors: errs})
	}
	eng, err := doc.NewEngine(opts...)
	if err != nil {
		var rt *engine.RuntimeError
		if errors.As(err, &rt) {
			_ = f.Error(string(rt.Code), rt.Message, nil)
		}
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	return eng, nil
}

// resolvePort turns "node.port" into an endpoint of doc. The node may be
// given by name or by numeric id; the split is at the last dot.
func resolvePort(doc *patch.Document, ref string) (graph.Endpoint, error) {
	i := strings.LastIndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return graph.Endpoint{}, fmt.Errorf("%q is not node.port", ref)
	}
	name, port := ref[:i], ref[i+1:]
	if n, ok := doc.NodeByName(name); ok {
		return graph.Endpoint{Node: graph.NodeID(n.ID), Port: port}, nil
	}
	if id, err := strconv.ParseInt(name, 10, 64); err == nil {
		for _, n := range doc.Nodes {
			if n.ID == id {
				return graph.Endpoint{Node: graph.NodeID(id), Port: port}, nil
			}
		}
	}
	return graph.Endpoint{}, fmt.Errorf("unknown node %q in %q", name, ref)
}

// parseInjection reads node.port=value[@tick]. Without @tick the value
// feeds the first tick.
func parseInjection(doc *patch.Document, spec string) (engine.Injection, error) {
	ref, rest, ok := strings.Cut(spec, "=")
	if !ok {
		return engine.Injection{}, fmt.Errorf("injection %q: want node.port=value[@tick]", spec)
	}
	valueText, tickText, hasTick := strings.Cut(rest, "@")

	value, err := strconv.ParseFloat(strings.TrimSpace(valueText), 64)
	if err != nil {
		return engine.Injection{}, fmt.Errorf("injection %q: bad value: %w", spec, err)
	}
	var at int64
	if hasTick {
		at, err = strconv.ParseInt(strings.TrimSpace(tickText), 10, 64)
		if err != nil || at < 0 {
			return engine.Injection{}, fmt.Errorf("injection %q: tick must be a non-negative integer", spec)
		}
	}
	ep, err := resolvePort(doc, strings.TrimSpace(ref))
	if err != nil {
		return engine.Injection{}, fmt.Errorf("injection %q: %w", spec, err)
	}
	return engine.Injection{At: at, Node: ep.Node, Port: ep.Port, Value: value}, nil
}

func parseInjections(doc *patch.Document, specs []string) ([]engine.Injection, error) {
	out := make([]engine.Injection, 0, len(specs))
	for _, s := range specs {
		inj, err := parseInjection(doc, s)
		if err != nil {
			return nil, err
		}
		out = append(out, inj)
	}
	return out, nil
}

// probeRef is a resolved probe with the label it was asked for by.
type probeRef struct {
	Label    string
	Endpoint graph.Endpoint
}

// resolveProbes resolves --probe values; none means every output port of
// every node, in id order.
func resolveProbes(doc *patch.Document, eng *engine.Engine, refs []string) ([]probeRef, error) {
	if len(refs) == 0 {
		var all []probeRef
		eng.View(func(g *graph.Graph) {
			for _, n := range g.Nodes() {
				for _, p := range n.Outputs {
					all = append(all, probeRef{
						Label:    n.Name + "." + p.Name,
						Endpoint: graph.Endpoint{Node: n.ID, Port: p.Name},
					})
				}
			}
		})
		return all, nil
	}

	out := make([]probeRef, 0, len(refs))
	for _, ref := range refs {
		ep, err := resolvePort(doc, ref)
		if err != nil {
			return nil, err
		}
		if _, err := eng.PortValue(ep.Node, ep.Port); err != nil {
			return nil, fmt.Errorf("probe %q: %w", ref, err)
		}
		out = append(out, probeRef{Label: ref, Endpoint: ep})
	}
	return out, nil
}
