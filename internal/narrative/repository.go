package narrative

import "context"

// SummaryRepository stores generated summaries. The summaries table also
// backs the regime history timeline via its label column.
type SummaryRepository interface {
	// Insert persists a summary and returns its id.
	Insert(ctx context.Context, s Summary) (int64, error)
	// Latest returns the newest summary, or nil when none exists yet.
	Latest(ctx context.Context) (*Summary, error)
	// Recent returns summaries with date >= since (YYYY-MM-DD), newest
	// first.
	Recent(ctx context.Context, since string) ([]Summary, error)
}
