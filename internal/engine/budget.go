package engine

import (
	"errors"
	"fmt"
)

// Budget bounds the work a single cycle may do. Exceeding any limit is a
// host interrupt: the cycle aborts with *BudgetExceededError and nothing
// is captured into hook state.
//
// Render depth catches runaway component recursion; hooks per render
// catches a loop registering hooks without bound; events per cycle bounds
// the dispatcher.
type Budget struct {
	MaxEventsPerCycle int
	MaxHooksPerRender int
	MaxRenderDepth    int
}

// Default limits.
const (
	DefaultMaxEventsPerCycle = 256
	DefaultMaxHooksPerRender = 4096
	DefaultMaxRenderDepth    = 64
)

// DefaultBudget returns the default limits.
func DefaultBudget() Budget {
	return Budget{
		MaxEventsPerCycle: DefaultMaxEventsPerCycle,
		MaxHooksPerRender: DefaultMaxHooksPerRender,
		MaxRenderDepth:    DefaultMaxRenderDepth,
	}
}

// withDefaults fills zero limits.
func (b Budget) withDefaults() Budget {
	d := DefaultBudget()
	if b.MaxEventsPerCycle <= 0 {
		b.MaxEventsPerCycle = d.MaxEventsPerCycle
	}
	if b.MaxHooksPerRender <= 0 {
		b.MaxHooksPerRender = d.MaxHooksPerRender
	}
	if b.MaxRenderDepth <= 0 {
		b.MaxRenderDepth = d.MaxRenderDepth
	}
	return b
}

// Limit names which budget was exceeded.
type Limit string

const (
	LimitEvents Limit = "events_per_cycle"
	LimitHooks  Limit = "hooks_per_render"
	LimitDepth  Limit = "render_depth"
)

// counter counts one resource against a limit.
type counter struct {
	limit   Limit
	max     int
	current int
}

func newCounter(limit Limit, max int) *counter {
	return &counter{limit: limit, max: max}
}

// Check increments the counter and validates against the limit.
func (c *counter) Check() error {
	c.current++
	if c.current > c.max {
		return &BudgetExceededError{Limit: c.limit, Count: c.current, Max: c.max}
	}
	return nil
}

// Reset sets the count back to zero.
func (c *counter) Reset() { c.current = 0 }

// BudgetExceededError is returned when a cycle exceeds its budget.
type BudgetExceededError struct {
	Limit Limit
	Count int
	Max   int
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("cycle exceeded %s budget: %d > %d", e.Limit, e.Count, e.Max)
}

// ErrorCode implements the coded-error contract used by ir.ErrorInfoFrom.
func (e *BudgetExceededError) ErrorCode() string { return "BUDGET_EXCEEDED" }

// IsBudgetExceeded returns true if err is or wraps a *BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
