package config

// Default values for optional configuration fields.
const (
	DefaultPort                = 8080
	DefaultDBPath              = "market_picture.db"
	DefaultTwelveDataBaseURL   = "https://api.twelvedata.com"
	DefaultFREDBaseURL         = "https://api.stlouisfed.org/fred"
	DefaultProviderTimeoutSecs = 15
	DefaultMaxRetries          = 3
	DefaultRetryBackoffMs      = 500
	DefaultSearchCacheTTLHours = 24
	DefaultFREDConcurrency     = 4
	DefaultCreditsPerMinute    = 55
	DefaultInteractiveReserve  = 15
	DefaultQueueWorkers        = 1
	DefaultQueueMaxAttempts    = 3
	DefaultQuoteIntervalMins   = 10
	DefaultFREDRefresh         = "15:30"
	DefaultPremarketQuotes     = "07:45"
	DefaultPremarketSummary    = "09:45"
	DefaultDailyAppend         = "16:45"
	DefaultCloseSummary        = "16:50"
	DefaultNarrativeTimeout    = 30
	DefaultNarrativeEndpoint   = "https://api.anthropic.com/v1/messages"
	DefaultNarrativeModel      = "claude-3-5-haiku-latest"
	DefaultExportDir           = "archive"
)

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath
	}

	if c.TwelveData.BaseURL == "" {
		c.TwelveData.BaseURL = DefaultTwelveDataBaseURL
	}
	if c.TwelveData.TimeoutSeconds == 0 {
		c.TwelveData.TimeoutSeconds = DefaultProviderTimeoutSecs
	}
	if c.TwelveData.MaxRetries == 0 {
		c.TwelveData.MaxRetries = DefaultMaxRetries
	}
	if c.TwelveData.RetryBackoffMs == 0 {
		c.TwelveData.RetryBackoffMs = DefaultRetryBackoffMs
	}
	if c.TwelveData.SearchCacheTTLHours == 0 {
		c.TwelveData.SearchCacheTTLHours = DefaultSearchCacheTTLHours
	}

	if c.FRED.BaseURL == "" {
		c.FRED.BaseURL = DefaultFREDBaseURL
	}
	if c.FRED.TimeoutSeconds == 0 {
		c.FRED.TimeoutSeconds = DefaultProviderTimeoutSecs
	}
	if c.FRED.Concurrency == 0 {
		c.FRED.Concurrency = DefaultFREDConcurrency
	}

	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = DefaultCreditsPerMinute
	}
	if c.RateLimit.InteractiveReserve == 0 {
		c.RateLimit.InteractiveReserve = DefaultInteractiveReserve
	}

	if c.Queue.Workers == 0 {
		c.Queue.Workers = DefaultQueueWorkers
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = DefaultQueueMaxAttempts
	}

	if c.Schedule.QuoteIntervalMinutes == 0 {
		c.Schedule.QuoteIntervalMinutes = DefaultQuoteIntervalMins
	}
	if c.Schedule.FREDRefresh == "" {
		c.Schedule.FREDRefresh = DefaultFREDRefresh
	}
	if c.Schedule.PremarketQuotes == "" {
		c.Schedule.PremarketQuotes = DefaultPremarketQuotes
	}
	if c.Schedule.PremarketSummary == "" {
		c.Schedule.PremarketSummary = DefaultPremarketSummary
	}
	if c.Schedule.DailyAppend == "" {
		c.Schedule.DailyAppend = DefaultDailyAppend
	}
	if c.Schedule.CloseSummary == "" {
		c.Schedule.CloseSummary = DefaultCloseSummary
	}

	if c.Markets == nil {
		c.Markets = defaultMarkets()
	}

	if c.Regime.SPXMAPeriod == 0 {
		c.Regime.SPXMAPeriod = 20
	}
	if c.Regime.VolSpikePct == 0 {
		c.Regime.VolSpikePct = 5.0
	}
	if c.Regime.VolDropPct == 0 {
		c.Regime.VolDropPct = -5.0
	}
	if c.Regime.HYSpreadRiskOff == 0 {
		c.Regime.HYSpreadRiskOff = 5.0
	}
	if c.Regime.HYSpreadRiskOn == 0 {
		c.Regime.HYSpreadRiskOn = 3.5
	}
	if c.Regime.HYWideningBps == 0 {
		c.Regime.HYWideningBps = 25.0
	}
	if c.Regime.DollarSpikePct == 0 {
		c.Regime.DollarSpikePct = 0.5
	}
	if c.Regime.GoldSafeHavenPct == 0 {
		c.Regime.GoldSafeHavenPct = 1.5
	}

	if c.Narrative.TimeoutSeconds == 0 {
		c.Narrative.TimeoutSeconds = DefaultNarrativeTimeout
	}
	if c.Narrative.Endpoint == "" {
		c.Narrative.Endpoint = DefaultNarrativeEndpoint
	}
	if c.Narrative.Model == "" {
		c.Narrative.Model = DefaultNarrativeModel
	}

	if c.Export.Dir == "" {
		c.Export.Dir = DefaultExportDir
	}

	if len(c.Assets) == 0 {
		c.Assets = defaultAssets()
	}
}

// defaultMarkets returns session windows in ET for each tracked market
// region. Japan and HK are overnight sessions from the ET perspective.
func defaultMarkets() map[string]MarketHours {
	return map[string]MarketHours{
		"US":     {Open: "09:30", Close: "16:00"},
		"Japan":  {Open: "20:00", Close: "02:00"},
		"UK":     {Open: "03:00", Close: "11:30"},
		"Europe": {Open: "03:00", Close: "11:30"},
		"HK":     {Open: "21:30", Close: "04:00"},
	}
}

// defaultAssets returns the tracked instrument universe. Twelve Data
// symbols use ETF proxies so the regime signals (SPY, VIXY, UUP, GLD) are
// always present; FRED series cover rates and credit spreads, including the
// synthetic 2s10s spread.
func defaultAssets() []Asset {
	return []Asset{
		{Symbol: "SPY", Name: "S&P 500 ETF", Class: "equities", Market: "US", Source: "twelvedata"},
		{Symbol: "QQQ", Name: "Nasdaq 100 ETF", Class: "equities", Market: "US", Source: "twelvedata"},
		{Symbol: "IWM", Name: "Russell 2000 ETF", Class: "equities", Market: "US", Source: "twelvedata"},
		{Symbol: "VIXY", Name: "VIX Short-Term Futures ETF", Class: "volatility", Market: "US", Source: "twelvedata"},
		{Symbol: "EWJ", Name: "Japan ETF", Class: "international", Market: "Japan", Source: "twelvedata"},
		{Symbol: "EWH", Name: "Hong Kong ETF", Class: "international", Market: "HK", Source: "twelvedata"},
		{Symbol: "FEZ", Name: "Euro Stoxx 50 ETF", Class: "international", Market: "Europe", Source: "twelvedata"},
		{Symbol: "UKX", Name: "FTSE 100", Class: "international", Market: "UK", Source: "twelvedata"},
		{Symbol: "UUP", Name: "US Dollar Index Fund", Class: "currencies", Market: "US", Source: "twelvedata"},
		{Symbol: "USO", Name: "Crude Oil Fund", Class: "commodities", Market: "US", Source: "twelvedata"},
		{Symbol: "GLD", Name: "Gold ETF", Class: "commodities", Market: "US", Source: "twelvedata"},
		{Symbol: "URA", Name: "Uranium ETF", Class: "critical_minerals", Market: "US", Source: "twelvedata"},
		{Symbol: "LIT", Name: "Lithium ETF", Class: "critical_minerals", Market: "US", Source: "twelvedata"},
		{Symbol: "REMX", Name: "Rare Earths ETF", Class: "critical_minerals", Market: "US", Source: "twelvedata"},
		{Symbol: "BTC/USD", Name: "Bitcoin", Class: "crypto", Market: "24/7", Source: "twelvedata"},
		{Symbol: "ETH/USD", Name: "Ethereum", Class: "crypto", Market: "24/7", Source: "twelvedata"},
		{Symbol: "DGS2", Name: "2-Year Treasury Yield", Class: "rates", Market: "US", Source: "fred"},
		{Symbol: "DGS10", Name: "10-Year Treasury Yield", Class: "rates", Market: "US", Source: "fred"},
		{Symbol: "SPREAD_2S10S", Name: "2s10s Yield Spread", Class: "rates", Market: "US", Source: "fred"},
		{Symbol: "BAMLC0A0CM", Name: "IG Corporate Bond Spread", Class: "credit", Market: "US", Source: "fred"},
		{Symbol: "BAMLH0A0HYM2", Name: "HY Corporate Bond Spread", Class: "credit", Market: "US", Source: "fred"},
	}
}
