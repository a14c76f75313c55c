package graph

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes structural errors.
type ErrorCode string

const (
	// CodeNotFound indicates a node or connection id that does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodePortNotFound indicates a port name missing from an existing node.
	CodePortNotFound ErrorCode = "PORT_NOT_FOUND"

	// CodeDuplicatePortName indicates two ports of one node share a name.
	CodeDuplicatePortName ErrorCode = "DUPLICATE_PORT_NAME"

	// CodeInvalidPortName indicates an empty port name.
	CodeInvalidPortName ErrorCode = "INVALID_PORT_NAME"

	// CodeWrongDirection indicates a connection from an input or into an output.
	CodeWrongDirection ErrorCode = "WRONG_DIRECTION"

	// CodeSelfLoop indicates a connection whose two endpoints are the same port.
	CodeSelfLoop ErrorCode = "SELF_LOOP"

	// CodeDuplicateConnection indicates the (source, destination) pair is already connected.
	CodeDuplicateConnection ErrorCode = "DUPLICATE_CONNECTION"

	// CodeDuplicateID indicates a restored id that is already in use.
	CodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// CodeInvalidConfig indicates a node without a usable behaviour.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// CodeGraphLocked indicates a structural mutation attempted while the
	// engine is running.
	CodeGraphLocked ErrorCode = "GRAPH_LOCKED_WHILE_RUNNING"
)

// Error is a structural error. A call that returns one has not changed the graph.
type Error struct {
	Code    ErrorCode
	Message string
	Node    NodeID
	Port    string
}

// Sentinels for errors.Is matching. Any *Error with the same Code matches.
var (
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrPortNotFound        = &Error{Code: CodePortNotFound}
	ErrDuplicatePortName   = &Error{Code: CodeDuplicatePortName}
	ErrInvalidPortName     = &Error{Code: CodeInvalidPortName}
	ErrWrongDirection      = &Error{Code: CodeWrongDirection}
	ErrSelfLoop            = &Error{Code: CodeSelfLoop}
	ErrDuplicateConnection = &Error{Code: CodeDuplicateConnection}
	ErrDuplicateID         = &Error{Code: CodeDuplicateID}
	ErrInvalidConfig       = &Error{Code: CodeInvalidConfig}
	ErrGraphLocked         = &Error{Code: CodeGraphLocked}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Node != 0 && e.Port != "":
		return fmt.Sprintf("%s: %s (node=%d, port=%s)", e.Code, msg, e.Node, e.Port)
	case e.Node != 0:
		return fmt.Sprintf("%s: %s (node=%d)", e.Code, msg, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the structural error code carried by err, or "".
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsStructural reports whether err is a structural graph error.
func IsStructural(err error) bool {
	return CodeOf(err) != ""
}

func notFound(what string, id int64) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %d does not exist", what, id)}
}
