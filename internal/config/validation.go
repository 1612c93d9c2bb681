package config

import (
	"fmt"
	"time"

	"vela/internal/market"
)

func validate(c *Config) error {
	for name, n := range c.History.ChunkCandles {
		g, err := market.ParseGranularity(name)
		if err != nil {
			return fmt.Errorf("history.chunk_candles: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("history.chunk_candles[%s] must be positive, got %d", g, n)
		}
		// Cache keys round chunk boundaries to the hour; a chunk narrower
		// than that would share a key with its neighbor.
		if span := time.Duration(n) * g.Duration(); span < time.Hour {
			return fmt.Errorf("history.chunk_candles[%s] spans %s, below the one-hour minimum", g, span)
		}
	}
	// Sanity floor so a typo'd live window does not cache still-open candles.
	if c.History.LiveWindowSeconds < 60 {
		return fmt.Errorf("history.live_window_seconds too small: %d", c.History.LiveWindowSeconds)
	}
	for i, pct := range c.Trading.SizeLadder {
		if pct <= 0 || pct > 1 {
			return fmt.Errorf("trading.size_ladder[%d] must be in (0,1], got %v", i, pct)
		}
		if i > 0 && pct >= c.Trading.SizeLadder[i-1] {
			return fmt.Errorf("trading.size_ladder must be strictly decreasing")
		}
	}
	if c.Trading.BracketTakeProfitMult <= 1 {
		return fmt.Errorf("trading.bracket_take_profit_mult must exceed 1, got %v", c.Trading.BracketTakeProfitMult)
	}
	if c.Trading.BracketStopLossMult >= 1 {
		return fmt.Errorf("trading.bracket_stop_loss_mult must be below 1, got %v", c.Trading.BracketStopLossMult)
	}
	return nil
}
