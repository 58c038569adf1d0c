package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketpicture/internal/apperror"
	"marketpicture/internal/provider"
)

type memCache struct {
	entries map[string]Entry
	getErr  error
	putErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]Entry)}
}

func (m *memCache) Get(_ context.Context, query string) (*Entry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[query]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memCache) Put(_ context.Context, e Entry) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[e.Query] = e
	return nil
}

type fakeSearcher struct {
	results []provider.SearchResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]provider.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestSearch_NormalizesQuery(t *testing.T) {
	cache := newMemCache()
	searcher := &fakeSearcher{results: []provider.SearchResult{{Symbol: "SPY", Name: "SPDR S&P 500"}}}
	svc := NewService(cache, searcher)

	resp, err := svc.Search(context.Background(), "  spy ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Query != "SPY" {
		t.Errorf("expected normalized query SPY, got %q", resp.Query)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "SPY" {
		t.Errorf("expected the provider to see the normalized query, got %v", searcher.queries)
	}
	if resp.Cached {
		t.Error("expected a cache miss on first lookup")
	}
	if len(resp.Results) != 1 || resp.Results[0].Symbol != "SPY" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}

	stored, ok := cache.entries["SPY"]
	if !ok {
		t.Fatal("expected the response to be cached")
	}
	if len(stored.Results) != 1 || stored.CachedAt.IsZero() {
		t.Errorf("unexpected cached entry: %+v", stored)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := NewService(newMemCache(), &fakeSearcher{})

	_, err := svc.Search(context.Background(), "   ")
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code() != apperror.BadRequest {
		t.Fatalf("expected a bad request error, got %v", err)
	}
}

func TestSearch_FreshCacheHitSkipsProvider(t *testing.T) {
	cache := newMemCache()
	cache.entries["GOLD"] = Entry{
		Query:    "GOLD",
		Results:  []provider.SearchResult{{Symbol: "GLD"}},
		CachedAt: time.Now().UTC().Add(-time.Hour),
	}
	searcher := &fakeSearcher{}
	svc := NewService(cache, searcher)

	resp, err := svc.Search(context.Background(), "gold")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !resp.Cached {
		t.Error("expected a cache hit")
	}
	if len(resp.Results) != 1 || resp.Results[0].Symbol != "GLD" {
		t.Errorf("unexpected cached results: %+v", resp.Results)
	}
	if len(searcher.queries) != 0 {
		t.Errorf("expected no provider calls on a cache hit, got %v", searcher.queries)
	}
}

func TestSearch_ExpiredEntryRefetches(t *testing.T) {
	cache := newMemCache()
	cache.entries["GOLD"] = Entry{
		Query:    "GOLD",
		Results:  []provider.SearchResult{{Symbol: "GLD"}},
		CachedAt: time.Now().UTC().Add(-25 * time.Hour),
	}
	searcher := &fakeSearcher{results: []provider.SearchResult{{Symbol: "GLD"}, {Symbol: "IAU"}}}
	svc := NewService(cache, searcher)

	resp, err := svc.Search(context.Background(), "GOLD")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Cached {
		t.Error("expected an expired entry to be refetched")
	}
	if len(resp.Results) != 2 {
		t.Errorf("expected the refreshed results, got %+v", resp.Results)
	}
	if len(searcher.queries) != 1 {
		t.Errorf("expected one provider call, got %v", searcher.queries)
	}
	if stored := cache.entries["GOLD"]; len(stored.Results) != 2 {
		t.Errorf("expected the cache refreshed, got %+v", stored)
	}
}

func TestSearch_ShortTTL(t *testing.T) {
	cache := newMemCache()
	cache.entries["SPY"] = Entry{
		Query:    "SPY",
		Results:  []provider.SearchResult{{Symbol: "SPY"}},
		CachedAt: time.Now().UTC().Add(-30 * time.Minute),
	}
	searcher := &fakeSearcher{results: []provider.SearchResult{{Symbol: "SPY"}}}
	svc := NewService(cache, searcher)
	svc.SetTTL(10 * time.Minute)

	resp, err := svc.Search(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Cached {
		t.Error("expected the shortened TTL to expire the entry")
	}
	if len(searcher.queries) != 1 {
		t.Errorf("expected one provider call, got %v", searcher.queries)
	}
}

func TestSearch_CacheErrorsDegradeToProvider(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("table locked")
	cache.putErr = errors.New("table locked")
	searcher := &fakeSearcher{results: []provider.SearchResult{{Symbol: "EWJ"}}}
	svc := NewService(cache, searcher)

	resp, err := svc.Search(context.Background(), "EWJ")
	if err != nil {
		t.Fatalf("expected cache failures to degrade, got %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Symbol != "EWJ" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

func TestSearch_ProviderErrorPropagates(t *testing.T) {
	searcher := &fakeSearcher{err: apperror.New(apperror.Unavailable, "provider rate limited")}
	svc := NewService(newMemCache(), searcher)

	_, err := svc.Search(context.Background(), "SPY")
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code() != apperror.Unavailable {
		t.Fatalf("expected the provider error to propagate, got %v", err)
	}
}
