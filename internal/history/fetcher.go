package history

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"vela/internal/logger"
	"vela/internal/market"
)

// TransientError lets gateway errors opt into retry classification.
type TransientError interface {
	Transient() bool
}

// Fetcher performs the upstream call for one chunk with bounded retry and
// exponential backoff. A chunk that exhausts its retries contributes no
// candles; the failure never propagates.
type Fetcher struct {
	source    market.Source
	retryMax  int
	baseDelay time.Duration
	sleep     func(time.Duration)
}

func NewFetcher(source market.Source, retryMax int, baseDelay time.Duration, sleep func(time.Duration)) *Fetcher {
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Fetcher{source: source, retryMax: retryMax, baseDelay: baseDelay, sleep: sleep}
}

// FetchChunk returns the chunk's candles, or an empty slice after the retry
// budget is spent. Context cancellation is the one error that is returned.
func (f *Fetcher) FetchChunk(ctx context.Context, chunk Chunk) ([]market.Candle, error) {
	delay := f.baseDelay
	for attempt := 1; attempt <= f.retryMax; attempt++ {
		candles, err := f.source.Candles(ctx, chunk.ProductID, chunk.Start, chunk.End, chunk.Granularity)
		if err == nil {
			return candles, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			logger.Errorf("fetch: permanent error for %s [%s, %s): %v",
				chunk.ProductID, chunk.Start.UTC().Format(time.RFC3339), chunk.End.UTC().Format(time.RFC3339), err)
			return nil, nil
		}
		logger.Warnf("fetch: transient error for %s (attempt %d/%d): %v", chunk.ProductID, attempt, f.retryMax, err)
		if attempt < f.retryMax {
			f.sleep(delay)
			delay *= 2
		}
	}
	logger.Errorf("fetch: retries exhausted for %s [%s, %s), chunk skipped",
		chunk.ProductID, chunk.Start.UTC().Format(time.RFC3339), chunk.End.UTC().Format(time.RFC3339))
	return nil, nil
}

func isTransient(err error) bool {
	var te TransientError
	if errors.As(err, &te) {
		return te.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
