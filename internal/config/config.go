package config

// Config is the root configuration for the market picture service.
type Config struct {
	Server     ServerConfig           `yaml:"server"`
	Database   DatabaseConfig         `yaml:"database"`
	TwelveData TwelveDataConfig       `yaml:"twelvedata"`
	FRED       FREDConfig             `yaml:"fred"`
	RateLimit  RateLimitConfig        `yaml:"rate_limit"`
	Queue      QueueConfig            `yaml:"queue"`
	Schedule   ScheduleConfig         `yaml:"schedule"`
	Markets    map[string]MarketHours `yaml:"markets"`
	Regime     RegimeConfig           `yaml:"regime"`
	Narrative  NarrativeConfig        `yaml:"narrative"`
	Export     ExportConfig           `yaml:"export"`
	Assets     []Asset                `yaml:"assets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TwelveDataConfig holds Twelve Data API settings.
type TwelveDataConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
	// SearchCacheTTLHours controls how long symbol-search responses are
	// served from the local cache before a fresh provider call.
	SearchCacheTTLHours int `yaml:"search_cache_ttl_hours"`
}

// FREDConfig holds FRED API settings.
type FREDConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Concurrency    int    `yaml:"concurrency"`
}

// RateLimitConfig holds the shared provider credit budget.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	// InteractiveReserve is the slice of the per-minute budget that
	// background work must leave untouched for interactive requests.
	InteractiveReserve int `yaml:"interactive_reserve"`
}

// QueueConfig holds backfill queue settings.
type QueueConfig struct {
	Workers     int `yaml:"workers"`
	MaxAttempts int `yaml:"max_attempts"`
}

// ScheduleConfig holds trigger times. At-times are HH:MM in US/Eastern,
// weekdays only.
type ScheduleConfig struct {
	QuoteIntervalMinutes int    `yaml:"quote_interval_minutes"`
	FREDRefresh          string `yaml:"fred_refresh"`
	PremarketQuotes      string `yaml:"premarket_quotes"`
	PremarketSummary     string `yaml:"premarket_summary"`
	DailyAppend          string `yaml:"daily_append"`
	CloseSummary         string `yaml:"close_summary"`
}

// MarketHours is a market session window in ET. Open > close means an
// overnight session (e.g. Japan 20:00-02:00).
type MarketHours struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// RegimeConfig holds regime classification thresholds.
type RegimeConfig struct {
	SPXMAPeriod      int     `yaml:"spx_ma_period"`
	VolSpikePct      float64 `yaml:"vol_spike_pct"`
	VolDropPct       float64 `yaml:"vol_drop_pct"`
	HYSpreadRiskOff  float64 `yaml:"hy_spread_risk_off"`
	HYSpreadRiskOn   float64 `yaml:"hy_spread_risk_on"`
	HYWideningBps    float64 `yaml:"hy_widening_bps"`
	DollarSpikePct   float64 `yaml:"dollar_spike_pct"`
	GoldSafeHavenPct float64 `yaml:"gold_safe_haven_pct"`
}

// NarrativeConfig holds the text-generation API settings. An empty API key
// disables remote generation; the deterministic fallback is used instead.
type NarrativeConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ExportConfig holds the Parquet archive export location.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// Asset is one tracked instrument. Source selects the provider
// ("twelvedata" or "fred"); Market selects the session window used to gate
// quote polling.
type Asset struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
	Class  string `yaml:"class"`
	Market string `yaml:"market"`
	Source string `yaml:"source"`
}

// AssetFor returns the asset entry for a symbol, if configured.
func (c *Config) AssetFor(symbol string) (Asset, bool) {
	for _, a := range c.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return Asset{}, false
}

// SourceFor returns the provider source for a symbol. Unconfigured symbols
// (ad-hoc lookups from search) default to Twelve Data.
func (c *Config) SourceFor(symbol string) string {
	if a, ok := c.AssetFor(symbol); ok {
		return a.Source
	}
	return "twelvedata"
}
