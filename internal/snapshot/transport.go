package snapshot

// AssetEntry is one dashboard row. Price is nil when the symbol has never
// been captured and has no stored history to fall back on.
type AssetEntry struct {
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Price     *float64 `json:"price"`
	ChangePct *float64 `json:"change_pct"`
	ChangeAbs *float64 `json:"change_abs"`
	Timestamp string   `json:"timestamp"`
	IsStale   bool     `json:"is_stale"`
}

// DashboardResponse groups the latest entry per asset by asset class.
type DashboardResponse struct {
	LastUpdated string                  `json:"last_updated"`
	Assets      map[string][]AssetEntry `json:"assets"`
}
