package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldboard/internal/metrics"
	"goldboard/internal/rates"
)

const secondarySource = "secondary"

// ErrNoSilverRow is returned when a payload parses but carries no silver quote.
var ErrNoSilverRow = errors.New("no silver row in secondary feed")

// SecondaryOptions parameterise the reference feed poller.
type SecondaryOptions struct {
	URL             string
	Timeout         time.Duration
	UserAgent       string
	SilverUnitGrams decimal.Decimal
}

// Secondary polls the plain-text reference feed and remembers the outcome of
// the most recent poll.
type Secondary struct {
	opts   SecondaryOptions
	logger zerolog.Logger
	client *http.Client

	mu      sync.RWMutex
	lastErr error
}

// NewSecondary constructs a secondary fetcher.
func NewSecondary(opts SecondaryOptions, logger zerolog.Logger) *Secondary {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !opts.SilverUnitGrams.IsPositive() {
		opts.SilverUnitGrams = decimal.NewFromInt(1000)
	}

	return &Secondary{
		opts:   opts,
		logger: logger.With().Str("component", "secondary_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchSecondary downloads and parses one sample.
func (s *Secondary) FetchSecondary(ctx context.Context) (rates.SecondaryFeedSample, error) {
	sample, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		metrics.RecordFeedError(secondarySource)
		return rates.SecondaryFeedSample{}, err
	}
	s.lastErr = nil
	metrics.RecordFeedSample(secondarySource)
	return sample, nil
}

// LastError returns the error of the most recent poll, nil after a success.
func (s *Secondary) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Secondary) fetch(ctx context.Context) (rates.SecondaryFeedSample, error) {
	if strings.TrimSpace(s.opts.URL) == "" {
		return rates.SecondaryFeedSample{}, errors.New("secondary feed url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return rates.SecondaryFeedSample{}, err
	}
	req.Header.Set("Accept", "text/plain")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "goldboard/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return rates.SecondaryFeedSample{}, fmt.Errorf("secondary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(body) > 0 {
			return rates.SecondaryFeedSample{}, fmt.Errorf("secondary feed error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return rates.SecondaryFeedSample{}, fmt.Errorf("secondary feed error (%d)", resp.StatusCode)
	}

	sample, err := ParseSecondary(resp.Body, s.opts.SilverUnitGrams)
	if err != nil {
		return rates.SecondaryFeedSample{}, err
	}
	sample.FetchedAt = time.Now().UTC()

	s.logger.Debug().
		Str("silver", sample.Silver.Decimal.String()).
		Bool("silver_with_gst", sample.SilverWithGST).
		Msg("secondary sample parsed")
	return sample, nil
}

// ParseSecondary reads tab-separated rows of id, name, bid, ask, high, low.
// The ask column is taken. Silver rows are quoted per kilogram and divided by
// silverUnitGrams. A name containing "WITH GST" marks a GST-inclusive quote.
// The first matching row per metal wins.
func ParseSecondary(r io.Reader, silverUnitGrams decimal.Decimal) (rates.SecondaryFeedSample, error) {
	if !silverUnitGrams.IsPositive() {
		silverUnitGrams = decimal.NewFromInt(1000)
	}

	var sample rates.SecondaryFeedSample
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			continue
		}

		name := strings.ToUpper(strings.TrimSpace(fields[1]))
		ask, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
		if err != nil || !ask.IsPositive() {
			continue
		}
		withGST := strings.Contains(name, "WITH GST") && !strings.Contains(name, "WITHOUT")

		switch {
		case strings.Contains(name, "SILVER") && !sample.Silver.Valid:
			sample.Silver = decimal.NewNullDecimal(ask.Div(silverUnitGrams))
			sample.SilverWithGST = withGST
		case strings.Contains(name, "GOLD") && !sample.Gold.Valid:
			sample.Gold = decimal.NewNullDecimal(ask)
			sample.GoldWithGST = withGST
		}
	}
	if err := scanner.Err(); err != nil {
		return rates.SecondaryFeedSample{}, fmt.Errorf("read secondary feed: %w", err)
	}
	if !sample.Silver.Valid {
		return rates.SecondaryFeedSample{}, ErrNoSilverRow
	}
	return sample, nil
}

var (
	_ SecondaryFetcher = (*Secondary)(nil)
	_ FeedStatus       = (*Secondary)(nil)
)
