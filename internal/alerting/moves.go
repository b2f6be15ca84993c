package alerting

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Move directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

var hundred = decimal.NewFromInt(100)

// Move is a final-price change between two buckets.
type Move struct {
	Purity    string
	Previous  decimal.Decimal
	Current   decimal.Decimal
	ChangePct decimal.Decimal
	Direction string
}

// DetectMoves compares final prices per purity and returns the moves whose
// absolute percentage change exceeds thresholdPct. Purities missing or zero on
// either side are skipped.
func DetectMoves(previous, current map[string]decimal.Decimal, thresholdPct decimal.Decimal) []Move {
	var moves []Move
	for purity, curr := range current {
		prev, ok := previous[purity]
		if !ok || !prev.IsPositive() || !curr.IsPositive() {
			continue
		}
		pct := curr.Sub(prev).Div(prev).Mul(hundred)
		if pct.Abs().LessThanOrEqual(thresholdPct) {
			continue
		}
		direction := DirectionUp
		if pct.IsNegative() {
			direction = DirectionDown
		}
		moves = append(moves, Move{
			Purity:    purity,
			Previous:  prev,
			Current:   curr,
			ChangePct: pct,
			Direction: direction,
		})
	}
	slices.SortFunc(moves, func(a, b Move) int { return strings.Compare(a.Purity, b.Purity) })
	return moves
}

// Cooldown suppresses repeat alerts per purity and direction.
type Cooldown struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown returns a cooldown gate. A zero window never suppresses.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, last: make(map[string]time.Time)}
}

// Allow reports whether an alert for move may fire at now and records it.
func (c *Cooldown) Allow(move Move, now time.Time) bool {
	key := move.Purity + ":" + move.Direction

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[key]; ok && c.window > 0 && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}
