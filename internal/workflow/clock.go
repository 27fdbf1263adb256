package workflow

import "sync/atomic"

// Clock is a monotonic logical clock for event ordering.
//
// Committed points, trace requests, and state-change notifications are all
// stamped with a strictly increasing seq number from this clock. Wall-clock
// timestamps are never used for ordering - replaying the same operations
// yields the same sequence numbers.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the workflow's single-writer design means one goroutine typically
// calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used when resuming a session against recorded history.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
