package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusErrored = "errored"
)

// RateSnapshot is the board state persisted once per scheduler bucket.
type RateSnapshot struct {
	Bucket     time.Time
	Gold24K    decimal.Decimal
	Gold22K    decimal.Decimal
	Silver999  decimal.Decimal
	Silver925  decimal.Decimal
	GoldBase   decimal.Decimal
	SilverBase decimal.Decimal
	WithGST    bool
	Frozen     bool
	Status     string
	Error      *string
	CreatedAt  time.Time
}

// AlertRecord captures an emitted price-move alert for de-duplication and
// auditing.
type AlertRecord struct {
	ID            int64
	SnapshotTS    time.Time
	Purity        string
	PreviousPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	ChangePct     decimal.Decimal
	ThresholdPct  decimal.Decimal
	Direction     string
	Channels      []string
	CreatedAt     time.Time
}
