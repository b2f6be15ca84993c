package board

import "sync"

// Gate decides which feed sample the calculator sees. While frozen, offered
// samples are parked in the latest slot and the applied value is held; the
// very first sample is always applied so a frozen board never starts empty.
type Gate[T any] struct {
	mu        sync.Mutex
	frozen    bool
	applied   T
	hasValue  bool
	latest    T
	hasLatest bool
}

// Offer records a new sample and reports whether it became the applied value.
func (g *Gate[T]) Offer(sample T) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasValue || !g.frozen {
		g.applied = sample
		g.hasValue = true
		g.clearLatest()
		return true
	}
	g.latest = sample
	g.hasLatest = true
	return false
}

// SetFrozen toggles the gate. Unfreezing applies the most recent parked
// sample, if any, and reports whether the applied value changed.
func (g *Gate[T]) SetFrozen(frozen bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	wasFrozen := g.frozen
	g.frozen = frozen
	if frozen || !wasFrozen || !g.hasLatest {
		return false
	}
	g.applied = g.latest
	g.hasValue = true
	g.clearLatest()
	return true
}

// Value returns the applied sample.
func (g *Gate[T]) Value() (T, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applied, g.hasValue
}

// Frozen reports the gate state.
func (g *Gate[T]) Frozen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frozen
}

// Pending reports whether a sample is parked behind the freeze.
func (g *Gate[T]) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasLatest
}

func (g *Gate[T]) clearLatest() {
	var zero T
	g.latest = zero
	g.hasLatest = false
}
