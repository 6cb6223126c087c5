package annotations

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const runColumns = `id, status, kind, file_name, source_key, source_type, output_key, reused,
       setup_seconds, parse_seconds, syntax_count, semantic_count,
       error_code, error_message, retryable, request_id, created_at, started_at, completed_at`

// Create inserts a new run.
func (r *PGRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO annotation_runs (
	id, status, kind, file_name, source_key, source_type, request_id, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.Kind,
		run.FileName,
		run.SourceKey,
		run.SourceType,
		run.RequestID,
		run.CreatedAt,
	)
	return err
}

// GetByID returns a run by ID.
func (r *PGRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	query := `SELECT ` + runColumns + `
FROM annotation_runs
WHERE id = $1
LIMIT 1`
	run, err := scanPGRun(r.DB.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// List returns runs newest first. A non-positive limit returns all rows.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Run, error) {
	query := `SELECT ` + runColumns + `
FROM annotation_runs
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2`
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, query, limitArg, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkProcessing claims a queued or retryable failed run.
func (r *PGRepo) MarkProcessing(ctx context.Context, runID string, startedAt time.Time) error {
	const query = `
UPDATE annotation_runs
SET status = 'processing', started_at = $2, completed_at = NULL,
    error_code = NULL, error_message = NULL, retryable = NULL
WHERE id = $1 AND (status = 'queued' OR (status = 'failed' AND retryable = TRUE))`
	res, err := r.DB.ExecContext(ctx, query, runID, startedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var status string
		err := r.DB.QueryRowContext(ctx, `SELECT status FROM annotation_runs WHERE id = $1`, runID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrNotClaimable
	}
	return nil
}

// Complete records a successful run.
func (r *PGRepo) Complete(ctx context.Context, runID string, c Completion, completedAt time.Time) error {
	const query = `
UPDATE annotation_runs
SET status = 'completed', output_key = $2, reused = $3, setup_seconds = $4, parse_seconds = $5,
    syntax_count = $6, semantic_count = $7, completed_at = $8
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, runID, c.OutputKey, c.Reused, c.SetupSeconds, c.ParseSeconds,
		c.SyntaxCount, c.SemanticCount, completedAt)
	return affectedOne(res, err)
}

// Fail records a failed run.
func (r *PGRepo) Fail(ctx context.Context, runID string, f Failure, completedAt time.Time) error {
	const query = `
UPDATE annotation_runs
SET status = 'failed', error_code = $2, error_message = $3, retryable = $4, completed_at = $5
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, runID, f.Code, f.Message, f.Retryable, completedAt)
	return affectedOne(res, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPGRun(row rowScanner) (Run, error) {
	var run Run
	var outputKey sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var retryable sql.NullBool
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.Kind,
		&run.FileName,
		&run.SourceKey,
		&run.SourceType,
		&outputKey,
		&run.Reused,
		&run.SetupSeconds,
		&run.ParseSeconds,
		&run.SyntaxCount,
		&run.SemanticCount,
		&errorCode,
		&errorMessage,
		&retryable,
		&run.RequestID,
		&run.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return Run{}, err
	}
	run.OutputKey = outputKey.String
	run.ErrorCode = nullString(errorCode)
	run.ErrorMessage = nullString(errorMessage)
	if retryable.Valid {
		run.Retryable = &retryable.Bool
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		run.CompletedAt = &t
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
