package history

import (
	"time"

	"vela/internal/config"
	"vela/internal/market"
)

// Config carries the fetch/cache pipeline knobs. Everything is injected at
// construction; tests override TTL, live window and the clock without
// touching process-wide state.
type Config struct {
	CacheDir       string
	TTL            time.Duration
	LiveWindow     time.Duration
	RetryMax       int
	RetryBaseDelay time.Duration
	FetchDelay     time.Duration
	ChunkCandles   map[market.Granularity]int

	// Now is the clock used for live-window and TTL decisions. Defaults to
	// time.Now.
	Now func() time.Time
	// Sleep is used for backoff and rate-limit pauses. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// FromConfig maps the file-level history section onto a pipeline Config.
func FromConfig(hc config.HistoryConfig) Config {
	table := make(map[market.Granularity]int, len(hc.ChunkCandles))
	for name, n := range hc.ChunkCandles {
		if g, err := market.ParseGranularity(name); err == nil {
			table[g] = n
		}
	}
	return Config{
		CacheDir:       hc.CacheDir,
		TTL:            time.Duration(hc.TTLSeconds) * time.Second,
		LiveWindow:     time.Duration(hc.LiveWindowSeconds) * time.Second,
		RetryMax:       hc.RetryMax,
		RetryBaseDelay: time.Duration(hc.RetryBaseDelayMS) * time.Millisecond,
		FetchDelay:     time.Duration(hc.FetchDelayMS) * time.Millisecond,
		ChunkCandles:   table,
	}
}

func (c Config) withDefaults() Config {
	if c.CacheDir == "" {
		c.CacheDir = "candle_data"
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.LiveWindow <= 0 {
		c.LiveWindow = time.Hour
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.FetchDelay <= 0 {
		c.FetchDelay = 500 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	return c
}
