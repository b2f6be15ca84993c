package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"goldboard/internal/alerting"
	"goldboard/internal/board"
	"goldboard/internal/fetcher"
	"goldboard/internal/metrics"
	"goldboard/internal/rates"
	"goldboard/internal/retailer"
	"goldboard/internal/scheduler"
	"goldboard/internal/storage"
)

// Runner is a blocking component that stops when ctx ends, such as the HTTP API.
type Runner interface {
	Run(ctx context.Context) error
}

// Options wires the service. Every dependency except Board and Retailer is
// optional; missing ones disable the matching loop.
type Options struct {
	Board    *board.Board
	Retailer *retailer.Service

	Live          fetcher.LiveSource
	Secondary     fetcher.SecondaryFetcher
	SecondaryPoll *scheduler.Scheduler
	Snapshots     *scheduler.Scheduler

	SnapshotStore storage.SnapshotStore
	AlertStore    storage.AlertStore
	Locker        storage.AdvisoryLocker
	LockKey       int64

	Notifier      alerting.Notifier
	AlertsEnabled bool
	ThresholdPct  float64
	AlertCooldown time.Duration
	AlertChannels []string
	API           Runner
}

// Service orchestrates the feeds, the board, persistence and alerting.
type Service struct {
	opts      Options
	logger    zerolog.Logger
	threshold decimal.Decimal
	cooldown  *alerting.Cooldown

	mu       sync.Mutex
	previous map[string]decimal.Decimal
}

// New constructs the board service.
func New(opts Options, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if opts.AlertsEnabled && opts.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(opts.ThresholdPct)
	}
	if opts.Locker == nil {
		if l, ok := opts.SnapshotStore.(storage.AdvisoryLocker); ok {
			opts.Locker = l
		}
	}

	return &Service{
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
		threshold: threshold,
		cooldown:  alerting.NewCooldown(opts.AlertCooldown),
	}
}

// Run starts every configured loop and blocks until ctx ends or one fails.
func (s *Service) Run(ctx context.Context) error {
	if s.opts.Board == nil || s.opts.Retailer == nil {
		return errors.New("board and retailer config are required")
	}

	s.opts.Retailer.Subscribe(func(cfg retailer.Config) {
		s.opts.Board.SetConfig(cfg)
		s.publishMetrics()
	})
	s.opts.Board.SetConfig(s.opts.Retailer.Current())

	g, ctx := errgroup.WithContext(ctx)

	if s.opts.Live != nil {
		s.opts.Live.OnSample(func(sample rates.RawFeedSample) {
			s.opts.Board.OnPrimary(sample)
			s.publishMetrics()
		})
		if err := s.opts.Live.Start(ctx); err != nil {
			return fmt.Errorf("start live feed: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			s.opts.Live.Stop()
			return nil
		})
	}

	if s.opts.Secondary != nil && s.opts.SecondaryPoll != nil {
		g.Go(func() error {
			return ignoreCanceled(s.opts.SecondaryPoll.Run(ctx, s.PollSecondary))
		})
	}

	if s.opts.Snapshots != nil {
		g.Go(func() error {
			return ignoreCanceled(s.opts.Snapshots.Run(ctx, s.ProcessBucket))
		})
	}

	if s.opts.API != nil {
		g.Go(func() error {
			return s.opts.API.Run(ctx)
		})
	}

	s.logger.Info().
		Bool("live", s.opts.Live != nil).
		Bool("secondary", s.opts.Secondary != nil).
		Bool("snapshots", s.opts.Snapshots != nil).
		Bool("api", s.opts.API != nil).
		Msg("board service started")

	err := g.Wait()
	s.opts.Board.Close()
	return err
}

// PollSecondary fetches one secondary sample into the board. A failure is
// shown on the board and the last applied sample stays in effect. Fetchers
// that report FeedStatus get a recovery log line after a failed poll.
func (s *Service) PollSecondary(ctx context.Context, _ time.Time) error {
	var prevErr error
	if status, ok := s.opts.Secondary.(fetcher.FeedStatus); ok {
		prevErr = status.LastError()
	}

	sample, err := s.opts.Secondary.FetchSecondary(ctx)
	if err != nil {
		s.opts.Board.SetFeedError(err.Error())
		return fmt.Errorf("poll secondary feed: %w", err)
	}
	if prevErr != nil {
		s.logger.Info().Str("previous_error", prevErr.Error()).Msg("secondary feed recovered")
	}
	s.opts.Board.OnSecondary(sample)
	s.publishMetrics()
	return nil
}

// ProcessBucket persists the current board state and raises move alerts.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBucket(ctx, bucket)
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	snap := s.opts.Board.Snapshot()
	record := buildSnapshot(bucket, snap)

	if s.opts.SnapshotStore != nil {
		if err := s.opts.SnapshotStore.UpsertSnapshot(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to upsert snapshot")
		}
	}

	s.logger.Info().Time("bucket", bucket).
		Str("status", record.Status).
		Str("gold_24k", record.Gold24K.String()).
		Str("silver_999", record.Silver999.String()).
		Bool("frozen", record.Frozen).
		Msg("snapshot recorded")

	current := finalPrices(snap.Rates)
	previous := s.swapPrevious(ctx, bucket, current)

	if record.Status == storage.StatusErrored || !s.alertsActive() {
		return nil
	}
	cfg := s.opts.Board.Config()
	if !cfg.NotificationsEnabled {
		return nil
	}

	for _, move := range alerting.DetectMoves(previous, current, s.threshold) {
		if !s.cooldown.Allow(move, bucket) {
			s.logger.Debug().Str("purity", move.Purity).Msg("alert suppressed by cooldown")
			continue
		}
		s.raise(ctx, bucket, cfg, move)
	}
	return nil
}

func (s *Service) raise(ctx context.Context, bucket time.Time, cfg retailer.Config, move alerting.Move) {
	label := move.Purity
	for _, view := range s.opts.Board.Snapshot().Prices {
		if string(view.Purity) == move.Purity {
			label = view.Label
		}
	}

	if s.opts.AlertStore != nil {
		rec := storage.AlertRecord{
			SnapshotTS:    bucket,
			Purity:        move.Purity,
			PreviousPrice: move.Previous,
			CurrentPrice:  move.Current,
			ChangePct:     move.ChangePct,
			ThresholdPct:  s.threshold,
			Direction:     move.Direction,
			Channels:      s.opts.AlertChannels,
		}
		if _, err := s.opts.AlertStore.InsertAlert(ctx, rec); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist alert record")
		}
	}

	note := alerting.Notification{
		Bucket:        bucket,
		ShopName:      cfg.ShopName,
		Purity:        move.Purity,
		Label:         label,
		PreviousPrice: move.Previous,
		CurrentPrice:  move.Current,
		ChangePct:     move.ChangePct,
		ThresholdPct:  s.threshold,
		Direction:     move.Direction,
		Channels:      s.opts.AlertChannels,
		DecimalPlaces: cfg.PriceDecimalPlaces,
	}
	if err := s.opts.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch alert")
	}
}

func (s *Service) alertsActive() bool {
	return s.opts.AlertsEnabled && s.opts.Notifier != nil && s.threshold.IsPositive()
}

// swapPrevious stores current as the baseline for the next bucket and returns
// the prior one, loading it from the snapshot store after a restart.
func (s *Service) swapPrevious(ctx context.Context, bucket time.Time, current map[string]decimal.Decimal) map[string]decimal.Decimal {
	s.mu.Lock()
	previous := s.previous
	s.previous = current
	s.mu.Unlock()

	if previous != nil || s.opts.SnapshotStore == nil {
		return previous
	}
	last, ok, err := s.opts.SnapshotStore.LatestSnapshotBefore(ctx, bucket)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load previous snapshot")
		return nil
	}
	if !ok {
		return nil
	}
	return map[string]decimal.Decimal{
		string(rates.Gold24K):   last.Gold24K,
		string(rates.Gold22K):   last.Gold22K,
		string(rates.Silver999): last.Silver999,
		string(rates.Silver925): last.Silver925,
	}
}

func (s *Service) publishMetrics() {
	current := s.opts.Board.Rates()
	for _, p := range rates.Purities() {
		metrics.SetFinalPrice(string(p), current.Get(p).FinalPrice.InexactFloat64())
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.opts.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.opts.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func buildSnapshot(bucket time.Time, snap board.Snapshot) storage.RateSnapshot {
	r := snap.Rates
	record := storage.RateSnapshot{
		Bucket:     bucket,
		Gold24K:    r.Gold24K.FinalPrice,
		Gold22K:    r.Gold22K.FinalPrice,
		Silver999:  r.Silver999.FinalPrice,
		Silver925:  r.Silver925.FinalPrice,
		GoldBase:   r.Gold24K.BasePrice,
		SilverBase: r.Silver999.BasePrice,
		WithGST:    snap.WithGST,
		Frozen:     snap.Frozen,
		CreatedAt:  time.Now().UTC(),
	}

	goldOK := r.Gold24K.BasePrice.IsPositive()
	silverOK := r.Silver999.BasePrice.IsPositive()
	switch {
	case goldOK && silverOK:
		record.Status = storage.StatusOK
	case goldOK || silverOK:
		record.Status = storage.StatusPartial
	default:
		record.Status = storage.StatusErrored
	}

	if snap.FeedError != "" {
		msg := snap.FeedError
		record.Error = &msg
	} else if record.Status == storage.StatusErrored {
		msg := "no feed data"
		record.Error = &msg
	}
	return record
}

func finalPrices(r rates.Rates) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, 4)
	for _, p := range rates.Purities() {
		out[string(p)] = r.Get(p).FinalPrice
	}
	return out
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
