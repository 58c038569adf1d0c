package search

import "context"

// Repository stores cached search responses keyed by normalized query.
type Repository interface {
	// Get returns the cached entry for a query, or nil when absent.
	Get(ctx context.Context, query string) (*Entry, error)
	// Put inserts or replaces the entry for its query.
	Put(ctx context.Context, e Entry) error
}
