package config

// Config is the top-level configuration for vela.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	History    HistoryConfig    `mapstructure:"history"`
	Coinbase   CoinbaseConfig   `mapstructure:"coinbase"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Journal    JournalConfig    `mapstructure:"journal"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// HistoryConfig carries every knob of the fetch/cache pipeline. Nothing here
// is read from package-level state; components receive it at construction so
// tests can shrink the TTL or live window freely.
type HistoryConfig struct {
	CacheDir          string         `mapstructure:"cache_dir"`
	TTLSeconds        int            `mapstructure:"ttl_seconds"`
	LiveWindowSeconds int            `mapstructure:"live_window_seconds"`
	RetryMax          int            `mapstructure:"retry_max"`
	RetryBaseDelayMS  int            `mapstructure:"retry_base_delay_ms"`
	FetchDelayMS      int            `mapstructure:"fetch_delay_ms"`
	ChunkCandles      map[string]int `mapstructure:"chunk_candles"`
}

type CoinbaseConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	APIKey             string `mapstructure:"api_key"`
	APISecret          string `mapstructure:"api_secret"`
	PortfolioType      string `mapstructure:"portfolio_type"`
	HTTPTimeoutSeconds int    `mapstructure:"http_timeout_seconds"`
}

type BinanceConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	RESTBaseURL        string `mapstructure:"rest_base_url"`
	HTTPTimeoutSeconds int    `mapstructure:"http_timeout_seconds"`
}

type TradingConfig struct {
	DefaultFeeRate         float64   `mapstructure:"default_fee_rate"`
	BracketTakeProfitMult  float64   `mapstructure:"bracket_take_profit_mult"`
	BracketStopLossMult    float64   `mapstructure:"bracket_stop_loss_mult"`
	BracketEndTimeDays     int       `mapstructure:"bracket_end_time_days"`
	CloseTimeoutSeconds    int       `mapstructure:"close_timeout_seconds"`
	CloseWorkers           int       `mapstructure:"close_workers"`
	SizeLadder             []float64 `mapstructure:"size_ladder"`
	MonitorIntervalSeconds int       `mapstructure:"monitor_interval_seconds"`
	MonitorMaxWaitSeconds  int       `mapstructure:"monitor_max_wait_seconds"`
}

type ThresholdsConfig struct {
	Path string `mapstructure:"path"`
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
