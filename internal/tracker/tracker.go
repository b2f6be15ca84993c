// Package tracker flags short-lived price deltas for a single price series.
package tracker

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHideAfter is how long a change stays flagged.
const DefaultHideAfter = time.Second

var hundred = decimal.NewFromInt(100)

// PriceChangeInfo describes the delta from the previous distinct price.
type PriceChangeInfo struct {
	Change           decimal.Decimal `json:"change"`
	PercentageChange decimal.Decimal `json:"percentageChange"`
	IsIncrease       bool            `json:"isIncrease"`
	IsDecrease       bool            `json:"isDecrease"`
	HasChanged       bool            `json:"hasChanged"`
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// WithHideAfter changes the flag lifetime.
func WithHideAfter(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.hideAfter = d
		}
	}
}

// Tracker remembers the previous distinct price of one series. At most one
// reset timer is pending at a time.
type Tracker struct {
	clock     Clock
	hideAfter time.Duration

	mu       sync.Mutex
	previous decimal.Decimal
	info     PriceChangeInfo
	timer    Timer
	gen      uint64
	disposed bool
}

// New creates a tracker with no baseline.
func New(opts ...Option) *Tracker {
	t := &Tracker{clock: realClock{}, hideAfter: DefaultHideAfter}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records the latest price. It reports whether a change was flagged.
func (t *Tracker) Observe(price decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return false
	}
	if !t.previous.IsPositive() {
		if !price.IsZero() {
			t.previous = price
		}
		return false
	}
	if price.Equal(t.previous) {
		return false
	}

	change := price.Sub(t.previous)
	t.info = PriceChangeInfo{
		Change:           change,
		PercentageChange: change.Div(t.previous).Mul(hundred),
		IsIncrease:       change.IsPositive(),
		IsDecrease:       change.IsNegative(),
		HasChanged:       true,
	}
	t.previous = price
	t.schedule()
	return true
}

// Current returns the active change annotation.
func (t *Tracker) Current() PriceChangeInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Dispose cancels the pending reset. Observe is a no-op afterwards.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.disposed = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// schedule replaces any pending reset. Callers hold t.mu.
func (t *Tracker) schedule() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.hideAfter, func() {
		t.reset(gen)
	})
}

func (t *Tracker) reset(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// a newer change or Dispose superseded this timer
	if gen != t.gen {
		return
	}
	t.info = PriceChangeInfo{}
	t.timer = nil
}
