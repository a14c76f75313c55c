package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/node"
)

// cueNode is the body of one entry under nodes.
type cueNode struct {
	Kind    string             `json:"kind"`
	Params  map[string]float64 `json:"params"`
	Inputs  []string           `json:"inputs"`
	Outputs []string           `json:"outputs"`
	Formula string             `json:"formula"`
}

// cueCable is one entry of the cables list.
type cueCable struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LoadCUE reads every patch declared in a .cue file, or in all .cue files
// of a directory. Patches are declared as
//
//	patch: spring: {
//		dt: 0.01
//		nodes: {
//			force: {kind: "formula", inputs: ["x", "v"], outputs: ["f"], formula: "f = -4 * x - 0.5 * v"}
//			vel:   {kind: "integrator"}
//		}
//		cables: [{from: "force.f", to: "vel.in"}]
//	}
//
// Node ids follow declaration order starting at 1; connection ids follow
// the order of cables.
func LoadCUE(path string) ([]*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("patch not found: %s", path)}
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		if err := instances[0].Err; err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", err)}
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: cueerrors.Details(err, nil)}
	}
	return decodeCUE(value)
}

// ParseCUE reads patches from CUE source text.
func ParseCUE(filename string, src []byte) ([]*Document, error) {
	value := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: cueerrors.Details(err, nil)}
	}
	return decodeCUE(value)
}

func decodeCUE(value cue.Value) ([]*Document, error) {
	patches := value.LookupPath(cue.ParsePath("patch"))
	if !patches.Exists() {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: "no patch declared"}
	}
	iter, err := patches.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating patches: %v", err)}
	}

	var docs []*Document
	for iter.Next() {
		doc, err := decodeCUEPatch(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: "no patch declared"}
	}
	return docs, nil
}

func decodeCUEPatch(name string, v cue.Value) (*Document, error) {
	doc := &Document{Name: name, Nodes: []NodeSpec{}, Connections: []ConnectionSpec{}}

	if dt := v.LookupPath(cue.ParsePath("dt")); dt.Exists() {
		f, err := dt.Float64()
		if err != nil {
			return nil, cueError(dt, "dt", err)
		}
		doc.DT = f
	}
	if hc := v.LookupPath(cue.ParsePath("history_capacity")); hc.Exists() {
		n, err := hc.Int64()
		if err != nil {
			return nil, cueError(hc, "history_capacity", err)
		}
		doc.HistoryCapacity = int(n)
	}

	ids := make(map[string]int64)
	nodes := v.LookupPath(cue.ParsePath("nodes"))
	if nodes.Exists() {
		iter, err := nodes.Fields()
		if err != nil {
			return nil, cueError(nodes, "nodes", err)
		}
		for iter.Next() {
			label := iter.Selector().Unquoted()
			var body cueNode
			if err := iter.Value().Decode(&body); err != nil {
				return nil, cueError(iter.Value(), "nodes."+label, err)
			}
			kind, err := node.ParseKind(body.Kind)
			if err != nil {
				return nil, cueError(iter.Value(), "nodes."+label+".kind", err)
			}
			id := int64(len(doc.Nodes) + 1)
			ids[label] = id
			doc.Nodes = append(doc.Nodes, NodeSpec{
				ID:      id,
				Name:    label,
				Kind:    kind,
				Params:  body.Params,
				Inputs:  body.Inputs,
				Outputs: body.Outputs,
				Formula: body.Formula,
			})
		}
	}

	cables := v.LookupPath(cue.ParsePath("cables"))
	if cables.Exists() {
		var list []cueCable
		if err := cables.Decode(&list); err != nil {
			return nil, cueError(cables, "cables", err)
		}
		for i, c := range list {
			from, err := resolveRef(ids, c.From)
			if err != nil {
				return nil, cueError(cables, fmt.Sprintf("cables[%d].from", i), err)
			}
			to, err := resolveRef(ids, c.To)
			if err != nil {
				return nil, cueError(cables, fmt.Sprintf("cables[%d].to", i), err)
			}
			doc.Connections = append(doc.Connections, ConnectionSpec{ID: int64(i + 1), From: from, To: to})
		}
	}
	return doc, nil
}

// resolveRef turns "name.port" into an endpoint.
func resolveRef(ids map[string]int64, ref string) (graph.Endpoint, error) {
	name, port, ok := strings.Cut(ref, ".")
	if !ok || name == "" || port == "" {
		return graph.Endpoint{}, fmt.Errorf("endpoint %q must be node.port", ref)
	}
	id, ok := ids[name]
	if !ok {
		return graph.Endpoint{}, fmt.Errorf("endpoint %q names an undeclared node", ref)
	}
	return graph.Endpoint{Node: graph.NodeID(id), Port: port}, nil
}

func cueError(v cue.Value, field string, err error) *LoadError {
	return &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: %v", field, err), Pos: v.Pos()}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
