// Package narrative turns the current market state into a short written
// summary. Generation goes through a chat-completion API when a key is
// configured and degrades to a deterministic plain-text fallback otherwise,
// so the scheduled summary always lands.
package narrative

import (
	"time"

	"marketpicture/internal/regime"
)

// Periods a summary can be generated for.
const (
	PeriodPremarket = "premarket"
	PeriodClose     = "close"
	PeriodAdhoc     = "adhoc"
)

// AssetMove is one symbol's latest price and daily change, as handed to the
// text generator.
type AssetMove struct {
	Price     float64  `json:"price"`
	ChangePct *float64 `json:"change_pct"`
}

// Payload is the structured market state a summary is written from.
type Payload struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Period      string               `json:"period"`
	Regime      regime.Result        `json:"regime"`
	Assets      map[string]AssetMove `json:"assets"`
}

// Summary is one persisted narrative.
type Summary struct {
	ID           int64     `json:"id"`
	Date         string    `json:"date"`
	Period       string    `json:"period"`
	SummaryText  string    `json:"summary_text"`
	RegimeLabel  string    `json:"regime_label"`
	RegimeReason string    `json:"regime_reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegimeEntry is one point of the regime history timeline.
type RegimeEntry struct {
	Date   string `json:"date"`
	Period string `json:"period"`
	Label  string `json:"label"`
}
