package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error raised by the engine's control surface.
//
// Structural errors come from the graph package (*graph.Error); compute
// errors of individual nodes never surface here, they are contained and
// counted as degraded ticks.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run, when known.
	RunID string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidTransition indicates a control action not allowed in the
	// current state (e.g. Pause while Idle).
	ErrCodeInvalidTransition RuntimeErrorCode = "INVALID_TRANSITION"

	// ErrCodeBudgetExceeded indicates the tick budget is used up.
	ErrCodeBudgetExceeded RuntimeErrorCode = "BUDGET_EXCEEDED"

	// ErrCodeInvalidDT indicates a non-positive or non-finite step length.
	ErrCodeInvalidDT RuntimeErrorCode = "INVALID_DT"

	// ErrCodeInvalidInjection indicates an injection into a missing or
	// non-input port, or a non-finite value.
	ErrCodeInvalidInjection RuntimeErrorCode = "INVALID_INJECTION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsTransitionError returns true if the error is an invalid state transition.
// Uses errors.As to handle wrapped errors.
func IsTransitionError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidTransition
	}
	return false
}

// IsBudgetError returns true if the tick budget was exhausted.
// Matches both RuntimeError with ErrCodeBudgetExceeded and BudgetExceededError.
func IsBudgetError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeBudgetExceeded
	}
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// NewTransitionError creates a RuntimeError for a refused control action.
func NewTransitionError(action string, from State) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s while %s", action, from),
		Details: map[string]string{
			"action": action,
			"state":  from.String(),
		},
	}
}

// NewDTError creates a RuntimeError for an unusable step length.
func NewDTError(dt float64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidDT,
		Message: fmt.Sprintf("dt must be finite and > 0, got %g", dt),
	}
}
