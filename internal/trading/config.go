package trading

import (
	"time"

	"vela/internal/config"
)

// Config carries the order placement and position closing knobs.
type Config struct {
	DefaultFeeRate float64
	// TakeProfitMult and StopLossMult derive bracket prices from the entry.
	TakeProfitMult float64
	StopLossMult   float64
	// BracketEndTime bounds how long a bracket stays armed.
	BracketEndTime time.Duration
	CloseTimeout   time.Duration
	CloseWorkers   int
	// SizeLadder is the descending sequence of position fractions tried when
	// a full-size close is rejected for insufficient funds.
	SizeLadder      []float64
	MonitorInterval time.Duration
	MonitorMaxWait  time.Duration

	Now   func() time.Time
	Sleep func(time.Duration)
}

// FromConfig maps the file-level trading section onto a Config.
func FromConfig(tc config.TradingConfig) Config {
	return Config{
		DefaultFeeRate:  tc.DefaultFeeRate,
		TakeProfitMult:  tc.BracketTakeProfitMult,
		StopLossMult:    tc.BracketStopLossMult,
		BracketEndTime:  time.Duration(tc.BracketEndTimeDays) * 24 * time.Hour,
		CloseTimeout:    time.Duration(tc.CloseTimeoutSeconds) * time.Second,
		CloseWorkers:    tc.CloseWorkers,
		SizeLadder:      tc.SizeLadder,
		MonitorInterval: time.Duration(tc.MonitorIntervalSeconds) * time.Second,
		MonitorMaxWait:  time.Duration(tc.MonitorMaxWaitSeconds) * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.DefaultFeeRate <= 0 {
		c.DefaultFeeRate = 0.005
	}
	if c.TakeProfitMult <= 1 {
		c.TakeProfitMult = 1.02
	}
	if c.StopLossMult <= 0 || c.StopLossMult >= 1 {
		c.StopLossMult = 0.98
	}
	if c.BracketEndTime <= 0 {
		c.BracketEndTime = 30 * 24 * time.Hour
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 30 * time.Second
	}
	if c.CloseWorkers <= 0 {
		c.CloseWorkers = 10
	}
	if len(c.SizeLadder) == 0 {
		c.SizeLadder = []float64{1.0, 0.99, 0.98, 0.95}
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 5 * time.Second
	}
	if c.MonitorMaxWait <= 0 {
		c.MonitorMaxWait = time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	return c
}
