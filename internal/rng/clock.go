package rng

import "time"

// Clock abstracts wall time so tests can pin action timestamps.
type Clock interface {
	Now() time.Time
}

// WallClock is the production clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// FixedClock returns a constant, advancing by step on every call.
type FixedClock struct {
	At   time.Time
	Step time.Duration
}

func (c *FixedClock) Now() time.Time {
	now := c.At
	c.At = c.At.Add(c.Step)
	return now
}
