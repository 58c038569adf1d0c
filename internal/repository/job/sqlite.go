package job

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketpicture/internal/apperror"
	domain "marketpicture/internal/job"
)

const dateFormat = "2006-01-02"

const jobColumns = `id, source, symbol, kind, priority, start_date,
	status, attempts, error, records_count, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, j *domain.Job) error {
	const query = `INSERT INTO jobs (source, symbol, kind, priority, start_date, status, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	start := ""
	if !j.StartDate.IsZero() {
		start = j.StartDate.Format(dateFormat)
	}

	res, err := r.db.ExecContext(ctx, query,
		j.Source, j.Symbol, string(j.Kind), j.Priority, start,
		string(j.Status), j.Attempts,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	j.ID, _ = res.LastInsertId()
	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	return nil
}

func (r *Repository) Update(ctx context.Context, j *domain.Job) error {
	const query = `UPDATE jobs SET status = ?, attempts = ?, error = ?, records_count = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, string(j.Status), j.Attempts, j.Error, j.RecordsCount, j.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	j := &domain.Job{}
	var kind, status, startStr, createdStr, updatedStr string
	var dbErr sql.NullString

	err := row.Scan(
		&j.ID, &j.Source, &j.Symbol, &kind, &j.Priority, &startStr,
		&status, &j.Attempts, &dbErr, &j.RecordsCount, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	j.Kind = domain.Kind(kind)
	j.Status = domain.Status(status)
	if dbErr.Valid {
		j.Error = dbErr.String
	}
	if startStr != "" {
		j.StartDate, _ = time.Parse(dateFormat, startStr)
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return j, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context, source, symbol string) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`

	var args []any
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY id DESC LIMIT 100"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}

	return jobs, rows.Err()
}

func (r *Repository) FindActive(ctx context.Context, symbol string, kind domain.Kind) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE symbol = ? AND kind = ?
		  AND status IN ('pending', 'running')
		LIMIT 1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, symbol, string(kind)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return j, nil
}

// ClaimPending claims the next pending job inside a transaction. Interactive
// tier jobs (lower priority value) are claimed before daily tier jobs; within
// a tier, oldest first.
func (r *Repository) ClaimPending(ctx context.Context) (*domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim pending: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE status = 'pending' ORDER BY priority ASC, id ASC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: select: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim pending: commit: %w", err)
	}

	return r.Get(ctx, id)
}

func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	const query = `UPDATE jobs SET status = 'pending', error = NULL,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	return res.RowsAffected()
}
