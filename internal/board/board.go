// Package board holds the live rate board session: the freeze gates in front
// of the feeds, the current retailer config, the calculated rates and one
// change tracker per displayed purity.
package board

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldboard/internal/rates"
	"goldboard/internal/retailer"
	"goldboard/internal/tracker"
)

// PriceView is one row of the board.
type PriceView struct {
	Purity  rates.Purity            `json:"purity"`
	Label   string                  `json:"label"`
	Visible bool                    `json:"visible"`
	Rate    rates.CalculatedRate    `json:"rate"`
	Price   decimal.Decimal         `json:"price"`
	Display string                  `json:"display"`
	Change  tracker.PriceChangeInfo `json:"change"`
}

// Snapshot is a consistent read of the board.
type Snapshot struct {
	Prices        []PriceView `json:"prices"`
	Rates         rates.Rates         `json:"-"`
	WithGST       bool                `json:"withGST"`
	Frozen        bool                `json:"frozen"`
	FrozenAt      *time.Time          `json:"frozenAt,omitempty"`
	PendingTick   bool                `json:"pendingTick"`
	Gold995       decimal.NullDecimal `json:"gold995"`
	FeedTimestamp time.Time           `json:"feedTimestamp"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	FeedError     string              `json:"feedError,omitempty"`
}

// Board recomputes rates synchronously whenever a sample is applied or the
// config changes.
type Board struct {
	calc   *rates.Calculator
	logger zerolog.Logger
	now    func() time.Time

	primary   Gate[rates.RawFeedSample]
	secondary Gate[rates.SecondaryFeedSample]

	mu        sync.RWMutex
	cfg       retailer.Config
	current   rates.Rates
	updatedAt time.Time
	feedErr   string
	trackers  map[rates.Purity]*tracker.Tracker
	closed    bool
}

// New builds a board for cfg. trackerOpts are applied to every purity tracker.
func New(calc *rates.Calculator, cfg retailer.Config, logger zerolog.Logger, trackerOpts ...tracker.Option) *Board {
	if calc == nil {
		calc = rates.NewCalculator()
	}
	b := &Board{
		calc:     calc,
		logger:   logger.With().Str("component", "board").Logger(),
		now:      time.Now,
		cfg:      cfg,
		trackers: make(map[rates.Purity]*tracker.Tracker, 4),
	}
	for _, p := range rates.Purities() {
		b.trackers[p] = tracker.New(trackerOpts...)
	}
	b.primary.SetFrozen(cfg.RatesFrozen)
	b.secondary.SetFrozen(cfg.RatesFrozen)
	return b
}

// OnPrimary accepts a live feed tick.
func (b *Board) OnPrimary(sample rates.RawFeedSample) {
	if b.primary.Offer(sample) {
		b.recompute()
		return
	}
	b.logger.Debug().Msg("rates frozen; live tick parked")
}

// OnSecondary accepts a polled secondary sample and clears the feed error.
func (b *Board) OnSecondary(sample rates.SecondaryFeedSample) {
	b.mu.Lock()
	b.feedErr = ""
	b.mu.Unlock()

	if b.secondary.Offer(sample) {
		b.recompute()
		return
	}
	b.logger.Debug().Msg("rates frozen; secondary sample parked")
}

// SetFeedError records a display-only feed error; rates are unaffected.
func (b *Board) SetFeedError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedErr = msg
}

// SetConfig syncs the freeze gates, swaps the retailer config and recomputes.
// The gates move first so a reader that sees RatesFrozen never sees a tick
// applied after it.
func (b *Board) SetConfig(cfg retailer.Config) {
	b.primary.SetFrozen(cfg.RatesFrozen)
	b.secondary.SetFrozen(cfg.RatesFrozen)

	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()

	b.recompute()
}

// Config returns the config currently applied.
func (b *Board) Config() retailer.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Rates returns the latest calculation.
func (b *Board) Rates() rates.Rates {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Snapshot returns rates, change flags and display strings.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cfg := b.cfg
	snap := Snapshot{
		Rates:       b.current,
		WithGST:     cfg.ShowWithGST,
		Frozen:      cfg.RatesFrozen,
		FrozenAt:    cfg.FrozenAt,
		PendingTick: b.primary.Pending() || b.secondary.Pending(),
		UpdatedAt:   b.updatedAt,
		FeedError:   b.feedErr,
	}
	if feed, ok := b.primary.Value(); ok {
		snap.FeedTimestamp = feed.Timestamp
		snap.Gold995 = feed.Gold995()
	}

	for _, p := range rates.Purities() {
		rate := b.current.Get(p)
		label, visible := presentation(cfg, p)
		snap.Prices = append(snap.Prices, PriceView{
			Purity:  p,
			Label:   label,
			Visible: visible,
			Rate:    rate,
			Price:   rates.Round(rate.FinalPrice, cfg.PriceDecimalPlaces),
			Display: rates.FormatINR(rate.FinalPrice, cfg.PriceDecimalPlaces),
			Change:  b.trackers[p].Current(),
		})
	}
	return snap
}

// Close disposes every tracker so no reset timer outlives the board.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, t := range b.trackers {
		t.Dispose()
	}
}

func (b *Board) recompute() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	// gates are read under b.mu so the last applied sample is the last computed
	in := rates.Input{}
	if feed, ok := b.primary.Value(); ok {
		in.Feed = &feed
	}
	if sec, ok := b.secondary.Value(); ok {
		in.Secondary = &sec
	}
	in.WithGST = b.cfg.ShowWithGST
	in.ApplyGSTToSecondary = b.cfg.ApplyGSTToSecondary

	b.current = b.calc.Calculate(in, b.cfg)
	b.updatedAt = b.now()
	for _, p := range rates.Purities() {
		if b.trackers[p].Observe(b.current.Get(p).FinalPrice) {
			b.logger.Debug().Str("purity", string(p)).
				Str("final_price", b.current.Get(p).FinalPrice.String()).
				Msg("price changed")
		}
	}
}

func presentation(cfg retailer.Config, p rates.Purity) (string, bool) {
	switch p {
	case rates.Gold24K:
		return cfg.Gold24KLabel, cfg.ShowGold24K
	case rates.Gold22K:
		return cfg.Gold22KLabel, cfg.ShowGold22K
	case rates.Silver999:
		return cfg.Silver999Label, cfg.ShowSilver999
	case rates.Silver925:
		return cfg.Silver925Label, cfg.ShowSilver925
	default:
		return string(p), false
	}
}
