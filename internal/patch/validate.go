package patch

import (
	"errors"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/patchbay/internal/graph"
	"github.com/roach88/patchbay/internal/node"
)

// Validation error codes (E201-E212)
const (
	ErrInvalidDT           = "E201" // dt must be positive and finite
	ErrInvalidHistory      = "E202" // history capacity must not be negative
	ErrInvalidNodeID       = "E203" // node id must be positive
	ErrDuplicateNodeID     = "E204" // node id used twice
	ErrUnknownKind         = "E205" // kind is not a known node kind
	ErrInvalidNodeConfig   = "E206" // params, ports or formula rejected
	ErrInvalidConnectionID = "E207" // connection id not positive or used twice
	ErrUnknownNode         = "E208" // connection names a missing node
	ErrUnknownPort         = "E209" // connection names a missing port
	ErrWrongDirection      = "E210" // connection does not run output -> input
	ErrSelfLoop            = "E211" // connection from a port to itself
	ErrDuplicateConnection = "E212" // same endpoints connected twice
)

// ValidationError is one problem found in a Document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a Document and returns every problem found.
func Validate(doc *Document) []ValidationError {
	_, errs := build(doc)
	return errs
}

// Build turns a Document into a graph with the Document's ids. All
// problems are reported together as a *multierror.Error of
// ValidationError values.
func Build(doc *Document) (*graph.Graph, error) {
	g, errs := build(doc)
	if len(errs) > 0 {
		var result *multierror.Error
		for _, e := range errs {
			result = multierror.Append(result, e)
		}
		return nil, result
	}
	return g, nil
}

// build creates the graph, continuing past failures so every problem is
// collected. Connections whose nodes failed to build are reported too.
func build(doc *Document) (*graph.Graph, []ValidationError) {
	var errs []ValidationError

	if doc.DT != 0 && (doc.DT < 0 || math.IsNaN(doc.DT) || math.IsInf(doc.DT, 0)) {
		errs = append(errs, ValidationError{Field: "dt", Message: fmt.Sprintf("dt %g must be positive and finite", doc.DT), Code: ErrInvalidDT})
	}
	if doc.HistoryCapacity < 0 {
		errs = append(errs, ValidationError{Field: "history_capacity", Message: "must not be negative", Code: ErrInvalidHistory})
	}

	g := graph.New()
	for i, spec := range doc.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if spec.ID <= 0 {
			errs = append(errs, ValidationError{Field: field + ".id", Message: fmt.Sprintf("id %d must be positive", spec.ID), Code: ErrInvalidNodeID})
			continue
		}
		if !spec.Kind.Valid() {
			errs = append(errs, ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown kind %q", spec.Kind), Code: ErrUnknownKind})
			continue
		}
		b, err := node.New(spec.Kind, spec.Config())
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrInvalidNodeConfig})
			continue
		}
		if err := g.Restore(graph.NodeID(spec.ID), spec.Name, b); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: nodeCode(err)})
		}
	}

	for i, spec := range doc.Connections {
		field := fmt.Sprintf("connections[%d]", i)
		err := g.RestoreConnection(graph.ConnectionID(spec.ID), spec.From, spec.To)
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: connectionCode(spec, err)})
		}
	}
	return g, errs
}

func nodeCode(err error) string {
	if errors.Is(err, graph.ErrDuplicateID) {
		return ErrDuplicateNodeID
	}
	return ErrInvalidNodeConfig
}

func connectionCode(spec ConnectionSpec, err error) string {
	switch graph.CodeOf(err) {
	case graph.CodeDuplicateID:
		return ErrInvalidConnectionID
	case graph.CodeNotFound:
		if spec.ID <= 0 {
			return ErrInvalidConnectionID
		}
		return ErrUnknownNode
	case graph.CodePortNotFound:
		return ErrUnknownPort
	case graph.CodeWrongDirection:
		return ErrWrongDirection
	case graph.CodeSelfLoop:
		return ErrSelfLoop
	case graph.CodeDuplicateConnection:
		return ErrDuplicateConnection
	}
	return ErrInvalidConnectionID
}
