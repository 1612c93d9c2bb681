package market

import (
	"context"
	"fmt"
	"time"
)

// FallbackSource serves candles from the primary source and falls back to
// the secondary when the primary errors or comes back empty.
type FallbackSource struct {
	primary   Source
	secondary Source
}

func NewFallbackSource(primary, secondary Source) *FallbackSource {
	return &FallbackSource{primary: primary, secondary: secondary}
}

func (f *FallbackSource) Candles(ctx context.Context, productID string, start, end time.Time, g Granularity) ([]Candle, error) {
	candles, err := f.primary.Candles(ctx, productID, start, end, g)
	if err == nil && len(candles) > 0 {
		return candles, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	fallback, ferr := f.secondary.Candles(ctx, productID, start, end, g)
	if ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("primary: %w (fallback also failed: %v)", err, ferr)
		}
		return candles, nil
	}
	return fallback, nil
}

func (f *FallbackSource) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}
