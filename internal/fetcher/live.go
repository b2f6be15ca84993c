package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldboard/internal/metrics"
	"goldboard/internal/rates"
)

const liveSource = "live"

// errNoPrices marks frames that carry no price, such as heartbeats.
var errNoPrices = errors.New("frame carries no price")

// LiveOptions parameterise the WebSocket feed.
type LiveOptions struct {
	URL              string
	SubscribeMessage string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
}

// Live consumes the primary price feed over WebSocket and reconnects with
// exponential backoff until stopped.
type Live struct {
	opts   LiveOptions
	logger zerolog.Logger
	dialer websocket.Dialer

	mu       sync.Mutex
	handlers []func(rates.RawFeedSample)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewLive constructs a live feed client.
func NewLive(opts LiveOptions, logger zerolog.Logger) *Live {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
		if opts.MaxBackoff < opts.MinBackoff {
			opts.MaxBackoff = opts.MinBackoff
		}
	}

	return &Live{
		opts:   opts,
		logger: logger.With().Str("component", "live_feed").Logger(),
		dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
	}
}

// OnSample registers a tick handler. Handlers run on the read goroutine.
func (l *Live) OnSample(fn func(rates.RawFeedSample)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, fn)
}

// Start launches the connect/read loop. It returns immediately.
func (l *Live) Start(ctx context.Context) error {
	if strings.TrimSpace(l.opts.URL) == "" {
		return errors.New("live feed url not configured")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return errors.New("live feed already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (l *Live) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Live) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := l.opts.MinBackoff
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errSessionHealthy) {
			backoff = l.opts.MinBackoff
		}

		metrics.RecordFeedError(liveSource)
		l.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("live feed disconnected")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		metrics.RecordReconnect()

		backoff *= 2
		if backoff > l.opts.MaxBackoff {
			backoff = l.opts.MaxBackoff
		}
	}
}

// errSessionHealthy wraps the close error of a session that delivered at least
// one sample, which resets the backoff.
var errSessionHealthy = errors.New("session delivered samples")

func (l *Live) session(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	l.logger.Info().Str("url", l.opts.URL).Msg("live feed connected")

	if l.opts.SubscribeMessage != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(l.opts.SubscribeMessage)); err != nil {
			return fmt.Errorf("send subscribe: %w", err)
		}
	}

	// unblock ReadMessage when the context ends
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	delivered := false
	for {
		if err := conn.SetReadDeadline(time.Now().Add(l.opts.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if delivered {
				return fmt.Errorf("%w: read: %v", errSessionHealthy, err)
			}
			return fmt.Errorf("read: %w", err)
		}

		sample, err := DecodeLiveMessage(payload)
		if err != nil {
			if !errors.Is(err, errNoPrices) {
				metrics.RecordFeedError(liveSource)
				l.logger.Warn().Err(err).Msg("discarding malformed live frame")
			}
			continue
		}
		if sample.Timestamp.IsZero() {
			sample.Timestamp = time.Now().UTC()
		}

		delivered = true
		metrics.RecordFeedSample(liveSource)
		l.emit(sample)
	}
}

func (l *Live) emit(sample rates.RawFeedSample) {
	l.mu.Lock()
	handlers := append(([]func(rates.RawFeedSample))(nil), l.handlers...)
	l.mu.Unlock()

	for _, fn := range handlers {
		fn(sample)
	}
}

type liveFrame struct {
	SellPrice999  decimal.NullDecimal `json:"sellPrice999"`
	SellPrice995  decimal.NullDecimal `json:"sellPrice995"`
	Timestamp     int64               `json:"timestamp"`
	ProviderCount int                 `json:"providerCount"`
	Data          *liveFrame          `json:"data"`
}

// DecodeLiveMessage parses a feed frame. Prices may be numbers or strings and
// may be wrapped in a {"data": {...}} envelope. Timestamps are unix millis.
func DecodeLiveMessage(payload []byte) (rates.RawFeedSample, error) {
	var frame liveFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return rates.RawFeedSample{}, fmt.Errorf("decode live frame: %w", err)
	}
	if frame.Data != nil {
		frame = *frame.Data
	}
	if !frame.SellPrice999.Valid && !frame.SellPrice995.Valid {
		return rates.RawFeedSample{}, errNoPrices
	}

	sample := rates.RawFeedSample{
		SellPrice999:  frame.SellPrice999,
		SellPrice995:  frame.SellPrice995,
		ProviderCount: frame.ProviderCount,
	}
	if frame.Timestamp > 0 {
		sample.Timestamp = time.UnixMilli(frame.Timestamp).UTC()
	}
	return sample, nil
}

var _ LiveSource = (*Live)(nil)
