// Package history implements the time-chunked, cached retrieval pipeline for
// historical candles: a planner splits the requested range into bounded
// chunks, each chunk is served from a TTL'd disk cache or fetched with retry,
// and the results are deduplicated and ordered. Requests touching the most
// recent hour bypass the cache entirely because their last candle may still
// be open.
package history

import (
	"context"
	"time"

	"vela/internal/logger"
	"vela/internal/market"
)

type Service struct {
	planner    *Planner
	cache      *Cache
	fetcher    *Fetcher
	fetchDelay time.Duration
	sleep      func(time.Duration)
}

func NewService(source market.Source, cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()
	cache, err := NewCache(cfg.CacheDir, cfg.TTL, cfg.LiveWindow, cfg.Now)
	if err != nil {
		return nil, err
	}
	return &Service{
		planner:    NewPlanner(cfg.ChunkCandles),
		cache:      cache,
		fetcher:    NewFetcher(source, cfg.RetryMax, cfg.RetryBaseDelay, cfg.Sleep),
		fetchDelay: cfg.FetchDelay,
		sleep:      cfg.Sleep,
	}, nil
}

// GetHistoricalData returns the deduplicated, chronologically ordered candles
// for [start, end). Chunks are processed sequentially: upstream is
// rate-limited and the live-window classification of each chunk depends on
// the wall clock at the moment of the call. A failed chunk degrades to fewer
// candles, never an error; the only error returned is context cancellation.
func (s *Service) GetHistoricalData(ctx context.Context, productID string, start, end time.Time, g market.Granularity) ([]market.Candle, error) {
	chunks, err := s.planner.Plan(productID, start, end, g)
	if err != nil {
		return nil, err
	}
	seen := make(map[market.CandleKey]bool)
	all := make([]market.Candle, 0)
	startSec, endSec := start.Unix(), end.Unix()
	admit := func(cs []market.Candle) int {
		added := 0
		for _, c := range cs {
			if c.Start < startSec || c.Start >= endSec {
				continue
			}
			key := c.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, c)
			added++
		}
		return added
	}

	var cachedTotal, fetchedTotal int
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		key := s.cache.Key(chunk.ProductID, chunk.Start, chunk.End, chunk.Granularity)
		if candles, ok := s.cache.Get(key, chunk.End); ok {
			cachedTotal += admit(candles)
			continue
		}
		candles, err := s.fetcher.FetchChunk(ctx, chunk)
		if err != nil {
			return all, err
		}
		if len(candles) > 0 {
			s.cache.Put(key, chunk.End, candles)
		}
		fetchedTotal += admit(candles)
		if i < len(chunks)-1 {
			// Fixed pause between live fetches to respect upstream rate limits.
			s.sleep(s.fetchDelay)
		}
	}

	market.SortByStart(all)
	logger.Infof("history: %s %s chunks=%d cached=%d fetched=%d unique=%d",
		productID, g, len(chunks), cachedTotal, fetchedTotal, len(all))
	return all, nil
}

// ClearCache removes every persisted chunk.
func (s *Service) ClearCache() error {
	return s.cache.Clear()
}
