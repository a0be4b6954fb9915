package testutil

import (
	"slices"
	"sync"
	"time"
)

// Epoch is the default start time of a FakeClock.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock and timer scheduler for tests.
//
// Timers fire only from Advance/AdvanceTo, in deadline order (ties in arm
// order), with Now() set to each timer's deadline while its callback runs.
// Callbacks run on the caller's goroutine without the clock lock held, so a
// callback may arm further timers.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int64
	timers []*FakeTimer
}

// FakeTimer is a timer armed on a FakeClock.
type FakeTimer struct {
	clock    *FakeClock
	id       int64
	deadline time.Time
	fn       func()
	done     bool
}

// NewFakeClock creates a clock starting at Epoch.
func NewFakeClock() *FakeClock {
	return NewFakeClockAt(Epoch)
}

// NewFakeClockAt creates a clock starting at start.
func NewFakeClockAt(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc arms fn to run once the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) *FakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &FakeTimer{clock: c, id: c.nextID, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Stop disarms the timer. Returns false if it already fired or was stopped.
func (t *FakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.timers = slices.DeleteFunc(t.clock.timers, func(o *FakeTimer) bool { return o == t })
	return true
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDeadline returns the earliest armed deadline.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next := c.earliestLocked(); next != nil {
		return next.deadline, true
	}
	return time.Time{}, false
}

// Advance moves the clock forward by d, firing due timers.
func (c *FakeClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves the clock to target, firing every timer whose deadline is
// at or before target. Timers armed by callbacks fire too if they fall due.
// Moving backwards is a no-op.
func (c *FakeClock) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		next := c.earliestLocked()
		if next == nil || next.deadline.After(target) {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		next.done = true
		c.timers = slices.DeleteFunc(c.timers, func(o *FakeTimer) bool { return o == next })
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

func (c *FakeClock) earliestLocked() *FakeTimer {
	var best *FakeTimer
	for _, t := range c.timers {
		if best == nil || t.deadline.Before(best.deadline) ||
			(t.deadline.Equal(best.deadline) && t.id < best.id) {
			best = t
		}
	}
	return best
}
