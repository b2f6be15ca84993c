package tracker

import (
	"sort"
	"sync"
	"time"
)

// ManualClock is a Clock advanced explicitly, for deterministic tests and
// replays.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Duration
	pending []*manualTimer
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

// NewManualClock returns a clock at offset zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// AfterFunc schedules f to run when the clock is advanced past d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &manualTimer{clock: c, at: c.now + d, f: f}
	c.pending = append(c.pending, timer)
	return timer
}

// Advance moves the clock forward and runs every callback that came due, in
// deadline order, outside the clock's lock.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	keep := c.pending[:0]
	for _, timer := range c.pending {
		switch {
		case timer.stopped:
		case timer.at <= c.now:
			timer.fired = true
			due = append(due, timer)
		default:
			keep = append(keep, timer)
		}
	}
	c.pending = keep
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, timer := range due {
		timer.f()
	}
}

// Pending reports how many timers are still scheduled.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			n++
		}
	}
	return n
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
