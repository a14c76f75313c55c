package engine

import (
	"errors"
	"fmt"
)

// TickBudget caps the number of ticks the driving loop may run.
//
// A budget of 0 is unlimited. The budget is consumed by Run only; manual
// Step and Tick calls are not counted. Stop and Reset refill it.
type TickBudget struct {
	max  int64
	used int64
}

// NewTickBudget creates a budget allowing max ticks (0 = unlimited).
func NewTickBudget(max int64) *TickBudget {
	return &TickBudget{max: max}
}

// Check consumes one tick and fails once the budget is exceeded.
func (b *TickBudget) Check(runID string) error {
	if b.max <= 0 {
		return nil
	}
	if b.used >= b.max {
		return &BudgetExceededError{RunID: runID, Ticks: b.used, Limit: b.max}
	}
	b.used++
	return nil
}

// Reset refills the budget.
func (b *TickBudget) Reset() { b.used = 0 }

// Used returns the ticks consumed so far.
func (b *TickBudget) Used() int64 { return b.used }

// Max returns the limit; 0 means unlimited.
func (b *TickBudget) Max() int64 { return b.max }

// BudgetExceededError is returned by Run when the tick budget is used up.
// The engine is left Paused, so the run can be inspected or resumed after
// a Reset.
type BudgetExceededError struct {
	RunID string
	Ticks int64
	Limit int64
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("run %s used its tick budget: %d ticks of %d", e.RunID, e.Ticks, e.Limit)
}

// IsBudgetExceededError returns true if the error is a BudgetExceededError.
func IsBudgetExceededError(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
