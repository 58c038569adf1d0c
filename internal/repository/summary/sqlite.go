package summary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "marketpicture/internal/narrative"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, s domain.Summary) (int64, error) {
	const query = `INSERT INTO summaries (date, period, summary_text, regime_label, regime_reason)
		VALUES (?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, s.Date, s.Period, s.SummaryText, s.RegimeLabel, s.RegimeReason)
	if err != nil {
		return 0, fmt.Errorf("insert summary: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repository) Latest(ctx context.Context) (*domain.Summary, error) {
	const query = `SELECT id, date, period, summary_text, regime_label, regime_reason, created_at
		FROM summaries
		ORDER BY date DESC, id DESC
		LIMIT 1`

	s, err := scanSummary(r.db.QueryRowContext(ctx, query).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	return &s, nil
}

func (r *Repository) Recent(ctx context.Context, since string) ([]domain.Summary, error) {
	const query = `SELECT id, date, period, summary_text, regime_label, regime_reason, created_at
		FROM summaries
		WHERE date >= ?
		ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sums []domain.Summary
	for rows.Next() {
		s, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sums = append(sums, s)
	}

	return sums, rows.Err()
}

func scanSummary(scan func(dest ...any) error) (domain.Summary, error) {
	var s domain.Summary
	var text, label, reason sql.NullString
	var createdStr string
	if err := scan(&s.ID, &s.Date, &s.Period, &text, &label, &reason, &createdStr); err != nil {
		return domain.Summary{}, err
	}
	s.SummaryText = text.String
	s.RegimeLabel = label.String
	s.RegimeReason = reason.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return s, nil
}
