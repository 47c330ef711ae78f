package query

import "time"

// Budget is the wall-clock allowance of a single query. Every blocking
// wait in the execution engine is clamped to Remaining so no goroutine
// outlives the query deadline.
type Budget struct {
	started  time.Time
	deadline time.Time
}

// NewBudget starts a budget of the given length.
func NewBudget(timeout time.Duration) Budget {
	now := time.Now()
	return Budget{started: now, deadline: now.Add(timeout)}
}

// Deadline is the absolute end of the budget.
func (b Budget) Deadline() time.Time { return b.deadline }

// Elapsed is the time spent since the budget started.
func (b Budget) Elapsed() time.Duration { return time.Since(b.started) }

// Remaining returns the time left, never negative.
func (b Budget) Remaining() time.Duration {
	if r := time.Until(b.deadline); r > 0 {
		return r
	}
	return 0
}

// HasTimeLeft reports whether the deadline is still in the future.
func (b Budget) HasTimeLeft() bool { return time.Now().Before(b.deadline) }

// Clamp limits d to the remaining budget.
func (b Budget) Clamp(d time.Duration) time.Duration {
	if r := b.Remaining(); d > r {
		return r
	}
	return d
}
