package testfixtures

import (
	"sync"
	"time"

	"github.com/example/saturday/internal/calendar"
)

// referenceTime is a Wednesday, so the next Saturday is three days out.
var referenceTime = time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Today returns the calendar day the clock is on.
func (c *Clock) Today() calendar.Date {
	return calendar.DateOf(c.Now())
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}

// AdvanceDays moves the clock forward by whole days.
func (c *Clock) AdvanceDays(n int) time.Time {
	return c.Advance(time.Duration(n) * 24 * time.Hour)
}
