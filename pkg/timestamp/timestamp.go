// Package timestamp provides standardized Unix timestamp handling for the
// bridge protocol.
//
// All protocol timestamps are int64 milliseconds since Unix epoch (UTC).
// This is the wire format for envelope stamps and the ordering signal for
// last-writer-wins state synchronization.
//
// A timestamp value of 0 means "not set": a shared-state default that was
// never written carries stamp zero and loses to any real write.
package timestamp

import (
	"sync"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Clock produces strictly increasing millisecond timestamps. Two writes
// landing in the same wall-clock millisecond still receive distinct stamps,
// which keeps last-writer-wins ordering deterministic on a single side.
type Clock struct {
	mu   sync.Mutex
	last int64
}

// NewClock creates a Clock seeded from the current wall clock.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns a timestamp strictly greater than any previously returned by
// this Clock, never behind the wall clock by more than the burst of calls
// within a single millisecond.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// Observe advances the clock past an externally observed timestamp so that
// subsequent local stamps order after it. Used when a remote update is
// applied: the next local write must win over the update it follows.
func (c *Clock) Observe(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ms > c.last {
		c.last = ms
	}
}
