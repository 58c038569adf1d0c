// Package snapshot polls point-in-time quotes for the configured assets,
// persists them as an append-only log, and serves the dashboard view built
// from the latest row per symbol.
package snapshot

import "time"

// Snapshot is one captured quote. Change fields are nil when the source
// could not supply a prior value to compare against.
type Snapshot struct {
	ID         int64
	Symbol     string
	AssetClass string
	Price      float64
	ChangePct  *float64
	ChangeAbs  *float64
	CapturedAt time.Time
}
