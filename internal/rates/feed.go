package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// gold995Factor relates the 995 and 999 quotes when the feed carries only one.
var gold995Factor = decimal.RequireFromString("0.998")

// RawFeedSample is one tick of the live market feed. Any price may be absent.
type RawFeedSample struct {
	SellPrice999  decimal.NullDecimal `json:"sellPrice999"`
	SellPrice995  decimal.NullDecimal `json:"sellPrice995"`
	Timestamp     time.Time           `json:"timestamp"`
	ProviderCount int                 `json:"providerCount"`
}

// Gold999 returns the 999 quote, deriving it from the 995 quote when the tick
// carries only that.
func (s RawFeedSample) Gold999() decimal.NullDecimal {
	if s.SellPrice999.Valid {
		return s.SellPrice999
	}
	if !s.SellPrice995.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(s.SellPrice995.Decimal.Div(gold995Factor))
}

// Gold995 returns the 995 quote, deriving it from the 999 quote when missing.
func (s RawFeedSample) Gold995() decimal.NullDecimal {
	if s.SellPrice995.Valid {
		return s.SellPrice995
	}
	if !s.SellPrice999.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(s.SellPrice999.Decimal.Mul(gold995Factor))
}

// SecondaryFeedSample is the polled reference feed. The *WithGST flags state
// whether the upstream quote already includes GST and are trusted verbatim.
type SecondaryFeedSample struct {
	Silver        decimal.NullDecimal `json:"silver"`
	Gold          decimal.NullDecimal `json:"gold"`
	SilverWithGST bool                `json:"silverWithGST"`
	GoldWithGST   bool                `json:"goldWithGST"`
	FetchedAt     time.Time           `json:"fetchedAt"`
}
