// Package runlooptest provides a deterministic runloop.Scheduler for tests.
package runlooptest

import (
	"sort"
	"time"

	"github.com/snarg/freescanner-live/internal/runloop"
)

// Clock is a fake scheduler. Time only moves on Advance; Post runs the
// function immediately on the caller's goroutine.
type Clock struct {
	now    time.Time
	seq    int
	timers []*timer
}

var _ runloop.Scheduler = (*Clock)(nil)

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time { return c.now }

func (c *Clock) Post(f func()) { f() }

func (c *Clock) AfterFunc(d time.Duration, f func()) runloop.Timer {
	c.seq++
	t := &timer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing due timers in deadline order.
// Timers scheduled by callbacks fire too if they fall inside the window.
func (c *Clock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		t := c.next(end)
		if t == nil {
			break
		}
		c.remove(t)
		c.now = t.at
		t.f()
	}
	c.now = end
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *Clock) Pending() int { return len(c.timers) }

func (c *Clock) next(end time.Time) *timer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if c.timers[0].at.After(end) {
		return nil
	}
	return c.timers[0]
}

func (c *Clock) remove(t *timer) bool {
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type timer struct {
	clock *Clock
	at    time.Time
	seq   int
	f     func()
}

func (t *timer) Stop() bool {
	return t.clock.remove(t)
}
