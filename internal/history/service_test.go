package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/internal/market"
)

// genSource synthesizes one candle per bucket in the requested range and
// counts upstream calls.
type genSource struct {
	calls int
	extra []market.Candle
}

func (s *genSource) Candles(_ context.Context, _ string, start, end time.Time, g market.Granularity) ([]market.Candle, error) {
	s.calls++
	step := int64(g.Duration() / time.Second)
	out := make([]market.Candle, 0)
	for ts := start.Unix(); ts < end.Unix(); ts += step {
		out = append(out, market.Candle{
			Start: ts, Open: 100, High: 101, Low: 99,
			Close: float64(ts % 1000), Volume: 1,
		})
	}
	// Returned newest-first plus re-delivered rows, the way a real feed
	// misbehaves.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return append(out, s.extra...), nil
}

func (s *genSource) Name() string { return "gen" }

func newTestService(t *testing.T, src market.Source, now time.Time, chunks map[market.Granularity]int) *Service {
	t.Helper()
	svc, err := NewService(src, Config{
		CacheDir:     t.TempDir(),
		TTL:          time.Hour,
		LiveWindow:   time.Hour,
		RetryMax:     3,
		ChunkCandles: chunks,
		Now:          func() time.Time { return now },
		Sleep:        func(time.Duration) {},
	})
	require.NoError(t, err)
	return svc
}

func TestGetHistoricalDataOrderedAndUnique(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-48 * time.Hour)
	end := start.Add(4 * time.Hour)
	src := &genSource{extra: []market.Candle{
		{Start: start.Unix(), Open: 100, High: 101, Low: 99, Close: float64(start.Unix() % 1000), Volume: 1},
		{Start: end.Unix() + 3600, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}}
	svc := newTestService(t, src, now, map[market.Granularity]int{market.OneHour: 2})

	got, err := svc.GetHistoricalData(context.Background(), "BTC-PERP-INTX", start, end, market.OneHour)
	require.NoError(t, err)
	require.Len(t, got, 4, "duplicates and out-of-range rows are dropped")

	for i, c := range got {
		assert.Equal(t, start.Unix()+int64(i)*3600, c.Start, "candles must be ascending and gap-free")
		assert.GreaterOrEqual(t, c.Start, start.Unix())
		assert.Less(t, c.Start, end.Unix())
	}
}

func TestGetHistoricalDataOverlapServedFromCache(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	t0 := now.Add(-48 * time.Hour)
	src := &genSource{}
	// 60 one-minute candles per chunk, so chunk boundaries land on the hour
	// and a one-hour shifted request re-derives the same keys.
	svc := newTestService(t, src, now, map[market.Granularity]int{market.OneMinute: 60})

	_, err := svc.GetHistoricalData(context.Background(), "BTC-PERP-INTX", t0, t0.Add(4*time.Hour), market.OneMinute)
	require.NoError(t, err)
	require.Equal(t, 4, src.calls)

	got, err := svc.GetHistoricalData(context.Background(), "BTC-PERP-INTX", t0.Add(time.Hour), t0.Add(5*time.Hour), market.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, 5, src.calls, "only the one new chunk may reach upstream")
	assert.Len(t, got, 4*60)
}

func TestGetHistoricalDataLiveWindowAlwaysFetches(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-50 * time.Minute)
	end := now.Add(-5 * time.Minute)
	src := &genSource{}
	svc := newTestService(t, src, now, map[market.Granularity]int{market.OneMinute: 60})

	_, err := svc.GetHistoricalData(context.Background(), "BTC-PERP-INTX", start, end, market.OneMinute)
	require.NoError(t, err)
	_, err = svc.GetHistoricalData(context.Background(), "BTC-PERP-INTX", start, end, market.OneMinute)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "live-window requests must bypass the cache")

	entries, err := os.ReadDir(svc.cache.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetHistoricalDataFailedChunkDegrades(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-48 * time.Hour)
	src := &scriptedSource{failN: 100, err: &flakyError{transient: true}}
	svc := newTestService(t, src, now, map[market.Granularity]int{market.OneHour: 300})

	got, err := svc.GetHistoricalData(context.Background(), "BTC-PERP-INTX", start, start.Add(4*time.Hour), market.OneHour)
	require.NoError(t, err, "a dead upstream degrades to empty, not an error")
	assert.Empty(t, got)
}

func TestClearCache(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-48 * time.Hour)
	src := &genSource{}
	svc := newTestService(t, src, now, map[market.Granularity]int{market.OneHour: 4})

	_, err := svc.GetHistoricalData(context.Background(), "BTC-PERP-INTX", start, start.Add(8*time.Hour), market.OneHour)
	require.NoError(t, err)
	entries, err := os.ReadDir(svc.cache.dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	require.NoError(t, svc.ClearCache())
	entries, err = os.ReadDir(svc.cache.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
