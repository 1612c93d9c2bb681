package market

import (
	"context"
	"time"
)

// Source unifies candle retrieval across venues. Implementations return
// candles with Start in [start, end), ascending, and are expected to enforce
// their own per-call row ceiling — callers chunk accordingly.
type Source interface {
	Candles(ctx context.Context, productID string, start, end time.Time, granularity Granularity) ([]Candle, error)
	Name() string
}
