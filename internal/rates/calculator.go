package rates

import (
	"github.com/shopspring/decimal"

	"goldboard/internal/retailer"
)

// DefaultGSTRate is the GST applied to bullion (3%).
var DefaultGSTRate = decimal.RequireFromString("0.03")

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)

	// 22k is priced from the 24k quote by fineness, 916/999.
	gold22KRatio = decimal.NewFromInt(916).Div(decimal.NewFromInt(999))
	// Sterling silver is priced from the 999 quote by fineness, 925/999.
	silver925Ratio = decimal.NewFromInt(925).Div(decimal.NewFromInt(999))
)

// Purity identifies one displayed price series.
type Purity string

const (
	Gold24K   Purity = "gold_24k"
	Gold22K   Purity = "gold_22k"
	Silver999 Purity = "silver_999"
	Silver925 Purity = "silver_925"
)

// Purities returns the displayed purities in board order.
func Purities() []Purity {
	return []Purity{Gold24K, Gold22K, Silver999, Silver925}
}

// CalculatedRate is the derivation of one displayed price. MakingCharges is nil
// when making charges are disabled, which is distinct from a zero charge.
type CalculatedRate struct {
	BasePrice       decimal.Decimal  `json:"basePrice"`
	PriceWithMargin decimal.Decimal  `json:"priceWithMargin"`
	PriceWithGST    decimal.Decimal  `json:"priceWithGST"`
	MakingCharges   *decimal.Decimal `json:"makingCharges,omitempty"`
	FinalPrice      decimal.Decimal  `json:"finalPrice"`
}

// Rates holds every displayed purity. Gold prices are per 10 g, silver per gram.
type Rates struct {
	Gold24K   CalculatedRate `json:"gold24k"`
	Gold22K   CalculatedRate `json:"gold22k"`
	Silver999 CalculatedRate `json:"silver999"`
	Silver925 CalculatedRate `json:"silver925"`
}

// Get returns the rate for p.
func (r Rates) Get(p Purity) CalculatedRate {
	switch p {
	case Gold24K:
		return r.Gold24K
	case Gold22K:
		return r.Gold22K
	case Silver999:
		return r.Silver999
	case Silver925:
		return r.Silver925
	default:
		return CalculatedRate{}
	}
}

// Input bundles the feed state for one calculation.
type Input struct {
	Feed      *RawFeedSample
	Secondary *SecondaryFeedSample
	// WithGST requests GST on top of the margin-adjusted price.
	WithGST bool
	// ApplyGSTToSecondary allows GST on secondary-feed legs that do not
	// already include it.
	ApplyGSTToSecondary bool
}

// Option customises a Calculator.
type Option func(*Calculator)

// WithGSTRate overrides the GST rate, expressed as a fraction (0.03 = 3%).
func WithGSTRate(rate decimal.Decimal) Option {
	return func(c *Calculator) {
		c.gstFactor = one.Add(rate)
	}
}

// Calculator derives displayed prices. It holds no mutable state and is safe
// for concurrent use.
type Calculator struct {
	gstFactor decimal.Decimal
}

// NewCalculator returns a Calculator using DefaultGSTRate unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{gstFactor: one.Add(DefaultGSTRate)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type leg struct {
	base     decimal.NullDecimal
	margin   float64
	applyGST bool
	charge   retailer.MakingCharge
}

// Calculate applies base → +margin → ×GST → +making charge to every purity.
// It never fails; unavailable legs come back as zero records and negative
// results are preserved as-is.
func (c *Calculator) Calculate(in Input, cfg retailer.Config) Rates {
	var primary999 decimal.NullDecimal
	if in.Feed != nil {
		primary999 = in.Feed.Gold999()
	}
	var secondary SecondaryFeedSample
	if in.Secondary != nil {
		secondary = *in.Secondary
	}

	if !primary999.Valid && !secondary.Silver.Valid {
		return Rates{}
	}

	gold := primary999
	goldGST := in.WithGST
	if !gold.Valid && secondary.Gold.Valid {
		gold = secondary.Gold
		goldGST = secondaryGST(in, secondary.GoldWithGST)
	}
	silver := secondary.Silver
	silverGST := secondaryGST(in, secondary.SilverWithGST)

	enabled := cfg.MakingChargesEnabled
	return Rates{
		Gold24K: c.price(leg{
			base: gold, margin: cfg.Gold24KMargin, applyGST: goldGST, charge: cfg.MakingCharges24K,
		}, enabled),
		Gold22K: c.price(leg{
			base: scale(gold, gold22KRatio), margin: cfg.Gold22KMargin, applyGST: goldGST, charge: cfg.MakingCharges22K,
		}, enabled),
		Silver999: c.price(leg{
			base: silver, margin: cfg.Silver999Margin, applyGST: silverGST, charge: cfg.MakingChargesSilver999,
		}, enabled),
		Silver925: c.price(leg{
			base: scale(silver, silver925Ratio), margin: cfg.Silver925Margin, applyGST: silverGST, charge: cfg.MakingChargesSilver925,
		}, enabled),
	}
}

func (c *Calculator) price(l leg, makingEnabled bool) CalculatedRate {
	if !l.base.Valid {
		return CalculatedRate{}
	}

	base := l.base.Decimal
	withMargin := base.Add(decimal.NewFromFloat(l.margin))
	withGST := withMargin
	if l.applyGST {
		withGST = withMargin.Mul(c.gstFactor)
	}

	rate := CalculatedRate{
		BasePrice:       base,
		PriceWithMargin: withMargin,
		PriceWithGST:    withGST,
		FinalPrice:      withGST,
	}
	if makingEnabled {
		charge := makingCharge(l.charge, withGST)
		rate.MakingCharges = &charge
		rate.FinalPrice = withGST.Add(charge)
	}
	return rate
}

// secondaryGST reports whether GST must still be applied to a secondary leg.
// A leg that already includes GST is never taxed twice.
func secondaryGST(in Input, alreadyIncluded bool) bool {
	return in.WithGST && in.ApplyGSTToSecondary && !alreadyIncluded
}

func makingCharge(charge retailer.MakingCharge, priceWithGST decimal.Decimal) decimal.Decimal {
	value := decimal.NewFromFloat(charge.Value)
	if charge.Type == retailer.MakingChargePercentage {
		return priceWithGST.Mul(value).Div(hundred)
	}
	return value
}

func scale(d decimal.NullDecimal, ratio decimal.Decimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Mul(ratio))
}
