// Package search persists symbol-search responses in sqlite.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketpicture/internal/provider"
	domain "marketpicture/internal/search"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, query string) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT query, results, cached_at FROM search_cache WHERE query = ?", query)

	var (
		e      domain.Entry
		raw    string
		cached string
	)
	if err := row.Scan(&e.Query, &raw, &cached); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached search: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &e.Results); err != nil {
		return nil, fmt.Errorf("decode cached results: %w", err)
	}
	at, err := time.Parse(time.RFC3339, cached)
	if err != nil {
		return nil, fmt.Errorf("parse cached_at: %w", err)
	}
	e.CachedAt = at

	return &e, nil
}

func (r *Repository) Put(ctx context.Context, e domain.Entry) error {
	results := e.Results
	if results == nil {
		// Store an empty list, not null, so decoding round-trips.
		results = []provider.SearchResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	const query = `INSERT INTO search_cache (query, results, cached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			results = excluded.results,
			cached_at = excluded.cached_at`

	if _, err := r.db.ExecContext(ctx, query, e.Query, string(raw), e.CachedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("cache search: %w", err)
	}
	return nil
}
