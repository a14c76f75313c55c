package engine

import (
	"context"
	"log/slog"
	"time"
)

// Run drives ticks while the engine is Running, one per cadence interval
// (cadence <= 0 ticks as fast as possible). While Idle or Paused it waits
// for a state change.
//
// Run returns nil once the engine is Stopped, ctx.Err() on cancellation,
// and a *BudgetExceededError (engine left Paused) when the tick budget set
// with WithMaxTicks is used up. Cancellation is only observed between
// ticks; a tick in progress always completes.
//
// Must be called from one goroutine at a time.
func (e *Engine) Run(ctx context.Context, cadence time.Duration) error {
	slog.Info("engine loop starting", "cadence", cadence.String(), "run_id", e.RunID())

	var pace <-chan time.Time
	if cadence > 0 {
		ticker := time.NewTicker(cadence)
		defer ticker.Stop()
		pace = ticker.C
	}

	for {
		switch e.State() {
		case Stopped:
			slog.Info("engine loop stopping: stopped", "run_id", e.RunID())
			return nil

		case Running:
			if pace != nil {
				select {
				case <-ctx.Done():
					slog.Info("engine loop stopping: context cancelled")
					return ctx.Err()
				case <-pace:
				}
			} else if err := ctx.Err(); err != nil {
				slog.Info("engine loop stopping: context cancelled")
				return err
			}
			report, ran, err := e.tickIfRunning()
			if err != nil {
				slog.Info("engine loop stopping: tick budget used", "run_id", e.RunID(), "error", err)
				return err
			}
			if ran {
				e.notify(ctx, report)
			}

		default:
			select {
			case <-ctx.Done():
				slog.Info("engine loop stopping: context cancelled")
				return ctx.Err()
			case <-e.wake:
			}
		}
	}
}

// tickIfRunning ticks only if the state is still Running once the lock is
// held, so a Pause issued between the state check and the tick wins.
func (e *Engine) tickIfRunning() (TickReport, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running {
		return TickReport{}, false, nil
	}
	if err := e.budget.Check(e.runID); err != nil {
		e.setState(Paused)
		return TickReport{}, false, err
	}
	return e.tickLocked(), true, nil
}
