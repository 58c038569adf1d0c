package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"marketpicture/internal/apperror"
	"marketpicture/internal/provider"
)

const defaultTTL = 24 * time.Hour

type Service struct {
	repo     Repository
	searcher provider.Searcher
	ttl      time.Duration
}

func NewService(repo Repository, searcher provider.Searcher) *Service {
	return &Service{repo: repo, searcher: searcher, ttl: defaultTTL}
}

// SetTTL overrides how long cached responses stay fresh.
func (s *Service) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// Search returns instrument matches for the query, served from the cache
// when a fresh entry exists. A cache failure degrades to a provider call
// rather than failing the lookup.
func (s *Service) Search(ctx context.Context, query string) (*Response, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, apperror.New(apperror.BadRequest, "search query is required")
	}

	cached, err := s.repo.Get(ctx, q)
	if err != nil {
		slog.Warn("search cache read failed", "query", q, "error", err)
	} else if cached != nil && !cached.Expired(s.ttl, time.Now().UTC()) {
		return &Response{Query: q, Results: cached.Results, Cached: true}, nil
	}

	results, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Put(ctx, Entry{Query: q, Results: results, CachedAt: time.Now().UTC()}); err != nil {
		slog.Warn("search cache write failed", "query", q, "error", err)
	}

	return &Response{Query: q, Results: results, Cached: false}, nil
}
