package fetcher

import (
	"context"

	"goldboard/internal/rates"
)

// LiveSource pushes primary feed ticks. Reconnect policy belongs to the
// implementation.
type LiveSource interface {
	OnSample(fn func(rates.RawFeedSample))
	Start(ctx context.Context) error
	Stop()
}

// SecondaryFetcher polls the reference feed that carries silver.
type SecondaryFetcher interface {
	FetchSecondary(ctx context.Context) (rates.SecondaryFeedSample, error)
}

// FeedStatus reports the outcome of the most recent fetch, nil after a success.
type FeedStatus interface {
	LastError() error
}
