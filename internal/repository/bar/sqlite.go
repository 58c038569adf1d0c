package bar

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "marketpicture/internal/history"
)

const dateFormat = "2006-01-02"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertBars writes bars in batches. Conflicting rows (same symbol and date)
// are overwritten with the incoming values, so refetching a range corrects
// stale data instead of duplicating it.
func (r *Repository) UpsertBars(ctx context.Context, bars []domain.Bar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	const batchSize = 500
	var total int64

	for i := 0; i < len(bars); i += batchSize {
		end := i + batchSize
		if end > len(bars) {
			end = len(bars)
		}
		batch := bars[i:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*7)
		for j, b := range batch {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?)"
			var volume any
			if b.Volume != nil {
				volume = *b.Volume
			}
			args = append(args, b.Symbol, b.Date.Format(dateFormat), b.Open, b.High, b.Low, b.Close, volume)
		}

		query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			`INSERT INTO bars (symbol, date, open, high, low, close, volume) VALUES %s
			ON CONFLICT(symbol, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume,
				updated_at = strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now')`,
			strings.Join(placeholders, ", "),
		)

		_, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("upsert bars: %w", err)
		}

		total += int64(len(batch))
	}

	return total, nil
}

func (r *Repository) Coverage(ctx context.Context, symbol string) (domain.Coverage, error) {
	const query = `SELECT MIN(date), MAX(date), COUNT(*) FROM bars WHERE symbol = ?`

	var first, last sql.NullString
	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol).Scan(&first, &last, &count); err != nil {
		return domain.Coverage{}, fmt.Errorf("coverage: %w", err)
	}

	cov := domain.Coverage{Count: count}
	if first.Valid {
		cov.First, _ = time.Parse(dateFormat, first.String)
	}
	if last.Valid {
		cov.Last, _ = time.Parse(dateFormat, last.String)
	}
	return cov, nil
}

func (r *Repository) Range(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	query := `SELECT id, symbol, date, open, high, low, close, volume, created_at, updated_at
		FROM bars
		WHERE symbol = ?`
	args := []any{symbol}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.Format(dateFormat))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, to.Format(dateFormat))
	}
	query += ` ORDER BY date ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanBars(rows)
}

// Recent returns the newest bars for a symbol, most recent first.
func (r *Repository) Recent(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	const query = `SELECT id, symbol, date, open, high, low, close, volume, created_at, updated_at
		FROM bars
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent bars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var dateStr, createdStr, updatedStr string
		var volume sql.NullInt64
		if err := rows.Scan(&b.ID, &b.Symbol, &dateStr, &b.Open, &b.High, &b.Low, &b.Close, &volume, &createdStr, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if volume.Valid {
			v := volume.Int64
			b.Volume = &v
		}
		b.Date, _ = time.Parse(dateFormat, dateStr)
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

func (r *Repository) Symbols(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT symbol FROM bars ORDER BY symbol`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}

	return symbols, rows.Err()
}
