// Package search looks up instruments by free-text query, caching provider
// responses so repeated lookups cost no credits.
package search

import (
	"time"

	"marketpicture/internal/provider"
)

// Entry is one cached search response.
type Entry struct {
	Query    string
	Results  []provider.SearchResult
	CachedAt time.Time
}

// Expired reports whether the entry is older than ttl as of now.
func (e Entry) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.CachedAt) > ttl
}
