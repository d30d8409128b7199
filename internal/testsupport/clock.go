package testsupport

import (
	"sync"
	"time"
)

// Clock is a settable time source for components that take a now func.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t, normalised to UTC.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
