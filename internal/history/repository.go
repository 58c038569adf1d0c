package history

import (
	"context"
	"time"
)

// Repository stores daily bars keyed by (symbol, date).
type Repository interface {
	// UpsertBars writes a batch of bars. Rows that already exist for the
	// same symbol and date are overwritten, so refetching a range is
	// idempotent and corrected provider data replaces stale rows.
	// Returns the number of bars written.
	UpsertBars(ctx context.Context, bars []Bar) (int64, error)
	// Coverage reports the first date, last date and row count stored for
	// a symbol. An empty coverage means the symbol has never been fetched.
	Coverage(ctx context.Context, symbol string) (Coverage, error)
	// Range returns bars for a symbol with from <= date <= to, ordered by
	// date ascending. A zero bound is open on that side, so two zero times
	// return the full stored series.
	Range(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
	// Recent returns the newest bars for a symbol, most recent first,
	// capped at limit.
	Recent(ctx context.Context, symbol string, limit int) ([]Bar, error)
	// Symbols lists every symbol with at least one stored bar.
	Symbols(ctx context.Context) ([]string, error)
}
