package tracker

import "time"

// Clock supplies system time so replay/batch runs can drive the pipeline
// with recorded time instead of wall time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation used in production.
func SystemClock() Clock { return systemClock{} }

// FixedClock is a settable clock for tests and replay.
type FixedClock struct {
	t time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time { return c.t }

func (c *FixedClock) Set(t time.Time) { c.t = t }

func (c *FixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
