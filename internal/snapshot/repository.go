package snapshot

import (
	"context"
	"time"
)

// Repository stores captured quotes. Rows are append-only; reads resolve
// "latest" by insertion order.
type Repository interface {
	// Insert appends a batch of snapshots and returns the number written.
	Insert(ctx context.Context, snaps []Snapshot) (int64, error)
	// LatestPerSymbol returns the most recent snapshot of every symbol.
	LatestPerSymbol(ctx context.Context) ([]Snapshot, error)
	// Latest returns the most recent snapshot for a symbol, or nil when
	// the symbol has never been captured.
	Latest(ctx context.Context, symbol string) (*Snapshot, error)
	// LatestBefore returns the most recent snapshot captured at or before
	// the cutoff, or nil when none exists.
	LatestBefore(ctx context.Context, symbol string, cutoff time.Time) (*Snapshot, error)
	// DailyCloses returns the last captured price of each calendar day for
	// a symbol, most recent day first, capped at limit days.
	DailyCloses(ctx context.Context, symbol string, limit int) ([]float64, error)
}
