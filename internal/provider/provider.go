// Package provider defines the upstream market-data contract shared by all
// data sources. Concrete clients live in subpackages and register themselves
// by source name.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Bar is one daily OHLCV observation as returned by a data source. Economic
// series carry a single value replicated across the OHLC fields and no
// volume.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *int64
}

// Quote is a point-in-time price with its change versus the prior close.
type Quote struct {
	Symbol    string
	Price     float64
	ChangePct float64
	ChangeAbs float64
	Timestamp time.Time
}

// SearchResult is one instrument match from a symbol lookup.
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Exchange string `json:"exchange"`
}

// SeriesProvider fetches daily history for a symbol. A zero since time
// requests the maximal range the source supports; otherwise bars on or after
// since are returned. Implementations return bars in ascending date order.
type SeriesProvider interface {
	Source() string
	Series(ctx context.Context, symbol string, since time.Time) ([]Bar, error)
}

// IntradayProvider fetches 5-minute bars covering the current trading
// session, in ascending order.
type IntradayProvider interface {
	Intraday(ctx context.Context, symbol string) ([]Bar, error)
}

// QuoteProvider fetches current quotes. Quotes returns one quote per
// resolvable symbol; symbols the source cannot price are skipped, not
// errors.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// Searcher looks up instruments matching a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

type Registry struct {
	mu        sync.RWMutex
	providers map[string]SeriesProvider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]SeriesProvider),
	}
}

func (r *Registry) Register(p SeriesProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Source()] = p
}

func (r *Registry) Get(source string) (SeriesProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[source]
	if !ok {
		return nil, fmt.Errorf("provider not found for source: %s", source)
	}
	return p, nil
}

func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sources := make([]string, 0, len(r.providers))
	for src := range r.providers {
		sources = append(sources, src)
	}
	return sources
}
