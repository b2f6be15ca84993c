package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldboard/internal/alerting"
	"goldboard/internal/api"
	"goldboard/internal/board"
	"goldboard/internal/config"
	"goldboard/internal/fetcher"
	"goldboard/internal/rates"
	"goldboard/internal/retailer"
	"goldboard/internal/scheduler"
	"goldboard/internal/service"
	"goldboard/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output such as tables and JSON documents.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newCalculator() *rates.Calculator {
	return rates.NewCalculator(rates.WithGSTRate(decimal.NewFromFloat(a.Config.Calculator.GSTRate)))
}

func (a *App) newFetchers() (*fetcher.Live, *fetcher.Secondary) {
	var live *fetcher.Live
	if feed := a.Config.Feed.Live; feed.Enabled && feed.URL != "" {
		live = fetcher.NewLive(fetcher.LiveOptions{
			URL:              feed.URL,
			SubscribeMessage: feed.SubscribeMessage,
			HandshakeTimeout: feed.HandshakeTimeout,
			ReadTimeout:      feed.ReadTimeout,
			MinBackoff:       feed.MinBackoff,
			MaxBackoff:       feed.MaxBackoff,
		}, a.Logger)
	}

	var secondary *fetcher.Secondary
	if feed := a.Config.Feed.Secondary; feed.Enabled && feed.URL != "" {
		secondary = fetcher.NewSecondary(fetcher.SecondaryOptions{
			URL:             feed.URL,
			Timeout:         feed.RequestTimeout,
			UserAgent:       feed.UserAgent,
			SilverUnitGrams: decimal.NewFromFloat(feed.SilverUnitGrams),
		}, a.Logger)
	}

	return live, secondary
}

// newNotifier always logs alerts and additionally routes them to Telegram
// when configured.
func (a *App) newNotifier() alerting.Notifier {
	notifiers := alerting.Multi{alerting.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notifiers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openConfigStore selects the retailer config backend. pg is the already
// opened database store, if any.
func (a *App) openConfigStore(ctx context.Context, pg *storage.Store) (retailer.Store, func(), error) {
	switch a.Config.Store.Backend {
	case config.StorePostgres:
		if pg == nil {
			return nil, nil, errors.New("database.dsn not configured; cannot use the postgres config store")
		}
		return pg, nil, nil
	case config.StoreRedis:
		client, err := storage.NewRedisClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisConfigStore(client, a.Config.Redis.KeyPrefix), func() { _ = client.Close() }, nil
	default:
		a.Logger.Warn().Msg("retailer config kept in memory; changes are lost on restart")
		return retailer.NewMemoryStore(), nil, nil
	}
}

// openRetailer opens the stores and loads this shop's config. The returned
// closer releases everything that was opened.
func (a *App) openRetailer(ctx context.Context) (*retailer.Service, *storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	cfgStore, closeCfg, err := a.openConfigStore(ctx, store)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, nil, nil, err
	}

	closer := func() {
		if closeCfg != nil {
			closeCfg()
		}
		if closeStore != nil {
			closeStore()
		}
	}

	svc := retailer.NewService(cfgStore, a.Config.Store.Key, a.Logger)
	if _, err := svc.Load(ctx); err != nil {
		closer()
		return nil, nil, nil, err
	}
	return svc, store, closer, nil
}

// Run executes the long-running rate board service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	retailerSvc, store, closeAll, err := a.openRetailer(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; snapshot persistence disabled")
	}

	b := board.New(a.newCalculator(), retailerSvc.Current(), a.Logger)

	opts := service.Options{
		Board:         b,
		Retailer:      retailerSvc,
		Notifier:      a.newNotifier(),
		AlertsEnabled: a.Config.Alerting.Enabled,
		ThresholdPct:  a.Config.Alerting.ThresholdPct,
		AlertCooldown: a.Config.Alerting.Cooldown,
		AlertChannels: a.Config.Alerting.Channels,
		Snapshots: scheduler.New(scheduler.Options{
			Name:         "snapshot",
			Interval:     a.Config.Scheduler.Interval,
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			StartupDelay: a.Config.Scheduler.StartupDelay,
		}, a.Logger),
	}

	live, secondary := a.newFetchers()
	if live != nil {
		opts.Live = live
	} else {
		a.Logger.Warn().Msg("live feed disabled or feed.live.url empty")
	}
	if secondary != nil {
		opts.Secondary = secondary
		opts.SecondaryPoll = scheduler.New(scheduler.Options{
			Name:      "secondary",
			Interval:  a.Config.Feed.Secondary.Interval,
			Immediate: true,
		}, a.Logger)
	}

	if store != nil {
		opts.SnapshotStore = store
		opts.AlertStore = store
		opts.Locker = store
		opts.LockKey = a.Config.Scheduler.AdvisoryLockKey
	}

	if a.Config.API.Enabled {
		opts.API = api.NewServer(api.Options{
			Addr:            a.Config.API.Addr,
			ReadTimeout:     a.Config.API.ReadTimeout,
			WriteTimeout:    a.Config.API.WriteTimeout,
			ShutdownTimeout: a.Config.API.ShutdownTimeout,
		}, b, retailerSvc, a.Logger)
	}

	svc := service.New(opts, a.Logger)

	a.Logger.Info().Str("shop", retailerSvc.Current().ShopName).Msg("starting rate board service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rate board service stopped")
	return nil
}

// ExportOptions hold parameters for exporting snapshot history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// CalcOptions carry the feed quotes for a one-shot calculation. Zero values
// are treated as missing.
type CalcOptions struct {
	Gold999       float64
	Gold995       float64
	Silver        float64
	SilverWithGST bool
	SecondaryGold float64
}

func (o CalcOptions) input() rates.Input {
	var in rates.Input
	if o.Gold999 > 0 || o.Gold995 > 0 {
		in.Feed = &rates.RawFeedSample{
			SellPrice999: positive(o.Gold999),
			SellPrice995: positive(o.Gold995),
			Timestamp:    time.Now().UTC(),
		}
	}
	if o.Silver > 0 || o.SecondaryGold > 0 {
		in.Secondary = &rates.SecondaryFeedSample{
			Silver:        positive(o.Silver),
			Gold:          positive(o.SecondaryGold),
			SilverWithGST: o.SilverWithGST,
			FetchedAt:     time.Now().UTC(),
		}
	}
	return in
}

func positive(v float64) decimal.NullDecimal {
	if v <= 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}
