package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/internal/market"
)

var testBase = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, ttl, liveWindow time.Duration, now func() time.Time) *Cache {
	t.Helper()
	c, err := NewCache(t.TempDir(), ttl, liveWindow, now)
	require.NoError(t, err)
	return c
}

func testCandles(start int64, n int, step int64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		s := start + int64(i)*step
		out[i] = market.Candle{Start: s, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 12.3}
	}
	return out
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour, time.Hour, func() time.Time { return testBase })
	start := testBase.Add(-48 * time.Hour)
	end := testBase.Add(-24 * time.Hour)

	key := c.Key("BTC-PERP-INTX", start, end, market.OneHour)
	candles := testCandles(start.Unix(), 24, 3600)
	c.Put(key, end, candles)

	got, ok := c.Get(key, end)
	require.True(t, ok)
	assert.Equal(t, candles, got)
}

func TestCacheKeyRounding(t *testing.T) {
	c := newTestCache(t, time.Hour, time.Hour, func() time.Time { return testBase })
	start := testBase.Add(-48 * time.Hour)
	end := testBase.Add(-24 * time.Hour)

	// Sub-hour jitter in a historical range rounds away.
	a := c.Key("BTC-PERP-INTX", start, end, market.OneHour)
	b := c.Key("BTC-PERP-INTX", start.Add(17*time.Minute), end.Add(42*time.Minute), market.OneHour)
	assert.Equal(t, a, b)

	// Product and granularity both contribute to the digest.
	assert.NotEqual(t, a, c.Key("ETH-PERP-INTX", start, end, market.OneHour))
	assert.NotEqual(t, a, c.Key("BTC-PERP-INTX", start, end, market.FiveMinute))

	// An end inside the live window keeps its exact timestamp, so two nearby
	// live requests never collide on one key.
	liveA := c.Key("BTC-PERP-INTX", start, testBase.Add(-10*time.Minute), market.OneHour)
	liveB := c.Key("BTC-PERP-INTX", start, testBase.Add(-9*time.Minute), market.OneHour)
	assert.NotEqual(t, liveA, liveB)
}

func TestCacheTTLExpiry(t *testing.T) {
	now := testBase
	c := newTestCache(t, time.Hour, time.Hour, func() time.Time { return now })
	start := testBase.Add(-48 * time.Hour)
	end := testBase.Add(-24 * time.Hour)

	key := c.Key("BTC-PERP-INTX", start, end, market.OneHour)
	c.Put(key, end, testCandles(start.Unix(), 3, 3600))

	now = testBase.Add(59 * time.Minute)
	_, ok := c.Get(key, end)
	assert.True(t, ok, "entry younger than TTL must hit")

	now = testBase.Add(61 * time.Minute)
	_, ok = c.Get(key, end)
	assert.False(t, ok, "entry older than TTL must miss")

	// The expired file is deleted, not just ignored.
	_, err := os.Stat(filepath.Join(c.dir, key+".json"))
	assert.True(t, os.IsNotExist(err))
}

func TestCacheLiveWindowBypass(t *testing.T) {
	c := newTestCache(t, time.Hour, time.Hour, func() time.Time { return testBase })
	start := testBase.Add(-2 * time.Hour)
	end := testBase.Add(-30 * time.Minute)

	key := c.Key("BTC-PERP-INTX", start, end, market.FiveMinute)
	c.Put(key, end, testCandles(start.Unix(), 5, 300))

	entries, err := os.ReadDir(c.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "live-window chunk must never be written")

	_, ok := c.Get(key, end)
	assert.False(t, ok)
}

func TestCacheCorruptEntryRemoved(t *testing.T) {
	c := newTestCache(t, time.Hour, time.Hour, func() time.Time { return testBase })
	start := testBase.Add(-48 * time.Hour)
	end := testBase.Add(-24 * time.Hour)
	key := c.Key("BTC-PERP-INTX", start, end, market.OneHour)

	path := filepath.Join(c.dir, key+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok := c.Get(key, end)
	assert.False(t, ok)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(t, time.Hour, time.Hour, func() time.Time { return testBase })
	start := testBase.Add(-72 * time.Hour)
	for i := 0; i < 3; i++ {
		end := start.Add(time.Duration(i+1) * 12 * time.Hour)
		key := c.Key("BTC-PERP-INTX", start, end, market.OneHour)
		c.Put(key, end, testCandles(start.Unix(), 2, 3600))
	}
	entries, err := os.ReadDir(c.dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.NoError(t, c.Clear())
	entries, err = os.ReadDir(c.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, c.Clear())
}
