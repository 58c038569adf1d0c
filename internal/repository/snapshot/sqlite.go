package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "marketpicture/internal/snapshot"
)

const columns = `id, symbol, asset_class, price, change_pct, change_abs, captured_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, snaps []domain.Snapshot) (int64, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(snaps))
	args := make([]any, 0, len(snaps)*6)
	for i, s := range snaps {
		placeholders[i] = "(?, ?, ?, ?, ?, ?)"
		var changePct, changeAbs any
		if s.ChangePct != nil {
			changePct = *s.ChangePct
		}
		if s.ChangeAbs != nil {
			changeAbs = *s.ChangeAbs
		}
		args = append(args, s.Symbol, s.AssetClass, s.Price, changePct, changeAbs, s.CapturedAt.UTC().Format(time.RFC3339))
	}

	query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
		`INSERT INTO snapshots (symbol, asset_class, price, change_pct, change_abs, captured_at) VALUES %s`,
		strings.Join(placeholders, ", "),
	)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("insert snapshots: %w", err)
	}
	return int64(len(snaps)), nil
}

// LatestPerSymbol returns the newest row of every captured symbol.
func (r *Repository) LatestPerSymbol(ctx context.Context) ([]domain.Snapshot, error) {
	const query = `SELECT s.id, s.symbol, s.asset_class, s.price, s.change_pct, s.change_abs, s.captured_at
		FROM snapshots s
		INNER JOIN (
			SELECT symbol, MAX(id) AS max_id FROM snapshots GROUP BY symbol
		) latest ON s.id = latest.max_id
		ORDER BY s.symbol`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []domain.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}

	return snaps, rows.Err()
}

func (r *Repository) Latest(ctx context.Context, symbol string) (*domain.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM snapshots WHERE symbol = ? ORDER BY id DESC LIMIT 1`, columns)

	s, err := scanSnapshot(r.db.QueryRowContext(ctx, query, symbol).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &s, nil
}

func (r *Repository) LatestBefore(ctx context.Context, symbol string, cutoff time.Time) (*domain.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM snapshots
		WHERE symbol = ? AND captured_at <= ?
		ORDER BY captured_at DESC LIMIT 1`, columns)

	s, err := scanSnapshot(r.db.QueryRowContext(ctx, query, symbol, cutoff.UTC().Format(time.RFC3339)).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot before cutoff: %w", err)
	}
	return &s, nil
}

// DailyCloses returns the last captured price per calendar day, newest day
// first. Used for moving averages over intraday capture data.
func (r *Repository) DailyCloses(ctx context.Context, symbol string, limit int) ([]float64, error) {
	const query = `SELECT s.price FROM snapshots s
		INNER JOIN (
			SELECT MAX(id) AS max_id FROM snapshots
			WHERE symbol = ?
			GROUP BY substr(captured_at, 1, 10)
		) latest ON s.id = latest.max_id
		ORDER BY s.captured_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("daily closes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		prices = append(prices, p)
	}

	return prices, rows.Err()
}

func scanSnapshot(scan func(dest ...any) error) (domain.Snapshot, error) {
	var s domain.Snapshot
	var changePct, changeAbs sql.NullFloat64
	var capturedStr string
	if err := scan(&s.ID, &s.Symbol, &s.AssetClass, &s.Price, &changePct, &changeAbs, &capturedStr); err != nil {
		return domain.Snapshot{}, err
	}
	if changePct.Valid {
		v := changePct.Float64
		s.ChangePct = &v
	}
	if changeAbs.Valid {
		v := changeAbs.Float64
		s.ChangeAbs = &v
	}
	s.CapturedAt, _ = time.Parse(time.RFC3339, capturedStr)
	return s, nil
}
