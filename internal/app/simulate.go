package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"goldboard/internal/board"
	"goldboard/internal/rates"
	"goldboard/internal/retailer"
	"goldboard/internal/service"
)

// SimulateAlert 用给定的前后两个 24K 基础金价模拟一次异动告警流程。
func (a *App) SimulateAlert(ctx context.Context, previous, current decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	return a.simulate(ctx, retailer.Defaults(), previous, current)
}

func (a *App) simulate(ctx context.Context, cfg retailer.Config, previous, current decimal.Decimal) error {
	cfg.RatesFrozen = false
	cfg.NotificationsEnabled = true

	b := board.New(a.newCalculator(), cfg, a.Logger)
	defer b.Close()

	svc := service.New(service.Options{
		Board:         b,
		Notifier:      a.newNotifier(),
		AlertsEnabled: true,
		ThresholdPct:  a.Config.Alerting.ThresholdPct,
		AlertChannels: a.Config.Alerting.Channels,
	}, a.Logger)

	interval := a.Config.Scheduler.Interval
	bucket := time.Now().UTC().Truncate(interval)

	b.OnPrimary(goldSample(previous))
	if err := svc.ProcessBucket(ctx, bucket.Add(-interval)); err != nil {
		return err
	}
	b.OnPrimary(goldSample(current))
	return svc.ProcessBucket(ctx, bucket)
}

func goldSample(price decimal.Decimal) rates.RawFeedSample {
	return rates.RawFeedSample{
		SellPrice999: decimal.NewNullDecimal(price),
		Timestamp:    time.Now().UTC(),
	}
}
