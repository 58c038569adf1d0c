package search

import "marketpicture/internal/provider"

// Response is the payload returned for a search request.
type Response struct {
	Query   string                  `json:"query"`
	Results []provider.SearchResult `json:"results"`
	Cached  bool                    `json:"cached"`
}
