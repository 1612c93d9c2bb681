package config

// Default chunk budgets, in candles per chunk. Sized so a single chunk stays
// well under the upstream per-request candle limit of 350.
var defaultChunkCandles = map[string]int{
	"ONE_MINUTE":     300,
	"FIVE_MINUTE":    25,
	"FIFTEEN_MINUTE": 75,
	"THIRTY_MINUTE":  150,
	"ONE_HOUR":       300,
	"SIX_HOUR":       48,
	"ONE_DAY":        24,
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9985"
	}

	if c.History.CacheDir == "" {
		c.History.CacheDir = "candle_data"
	}
	if c.History.TTLSeconds <= 0 {
		c.History.TTLSeconds = 3600
	}
	if c.History.LiveWindowSeconds <= 0 {
		c.History.LiveWindowSeconds = 3600
	}
	if c.History.RetryMax <= 0 {
		c.History.RetryMax = 3
	}
	if c.History.RetryBaseDelayMS <= 0 {
		c.History.RetryBaseDelayMS = 500
	}
	if c.History.FetchDelayMS <= 0 {
		c.History.FetchDelayMS = 500
	}
	if len(c.History.ChunkCandles) == 0 {
		c.History.ChunkCandles = make(map[string]int, len(defaultChunkCandles))
	}
	for g, n := range defaultChunkCandles {
		if c.History.ChunkCandles[g] <= 0 {
			c.History.ChunkCandles[g] = n
		}
	}

	if c.Coinbase.BaseURL == "" {
		c.Coinbase.BaseURL = "https://api.coinbase.com"
	}
	if c.Coinbase.PortfolioType == "" {
		c.Coinbase.PortfolioType = "INTX"
	}
	if c.Coinbase.HTTPTimeoutSeconds <= 0 {
		c.Coinbase.HTTPTimeoutSeconds = 15
	}

	if c.Binance.RESTBaseURL == "" {
		c.Binance.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.Binance.HTTPTimeoutSeconds <= 0 {
		c.Binance.HTTPTimeoutSeconds = 15
	}

	if c.Trading.DefaultFeeRate <= 0 {
		c.Trading.DefaultFeeRate = 0.005
	}
	if c.Trading.BracketTakeProfitMult <= 0 {
		c.Trading.BracketTakeProfitMult = 1.02
	}
	if c.Trading.BracketStopLossMult <= 0 {
		c.Trading.BracketStopLossMult = 0.98
	}
	if c.Trading.BracketEndTimeDays <= 0 {
		c.Trading.BracketEndTimeDays = 30
	}
	if c.Trading.CloseTimeoutSeconds <= 0 {
		c.Trading.CloseTimeoutSeconds = 30
	}
	if c.Trading.CloseWorkers <= 0 {
		c.Trading.CloseWorkers = 10
	}
	if len(c.Trading.SizeLadder) == 0 {
		c.Trading.SizeLadder = []float64{1.0, 0.99, 0.98, 0.95}
	}
	if c.Trading.MonitorIntervalSeconds <= 0 {
		c.Trading.MonitorIntervalSeconds = 5
	}
	if c.Trading.MonitorMaxWaitSeconds <= 0 {
		c.Trading.MonitorMaxWaitSeconds = 3600
	}

	if c.Archive.Dir == "" {
		c.Archive.Dir = "data/archive"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/journal.db"
	}
}
