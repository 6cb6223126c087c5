package annotations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteRepo implements Repo on an embedded SQLite database. Timestamps are
// stored as RFC 3339 text so they sort lexically.
type SQLiteRepo struct {
	DB *sql.DB
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Create inserts a new run.
func (r *SQLiteRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO annotation_runs (
	id, status, kind, file_name, source_key, source_type, request_id, created_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.DB.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.Kind,
		run.FileName,
		run.SourceKey,
		run.SourceType,
		run.RequestID,
		formatSQLiteTime(run.CreatedAt),
	)
	return err
}

// GetByID returns a run by ID.
func (r *SQLiteRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	query := `SELECT ` + runColumns + `
FROM annotation_runs
WHERE id = ?
LIMIT 1`
	run, err := scanSQLiteRun(r.DB.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// List returns runs newest first. A non-positive limit returns all rows.
func (r *SQLiteRepo) List(ctx context.Context, limit, offset int) ([]Run, error) {
	query := `SELECT ` + runColumns + `
FROM annotation_runs
ORDER BY created_at DESC, rowid DESC
LIMIT ? OFFSET ?`
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkProcessing claims a queued or retryable failed run.
func (r *SQLiteRepo) MarkProcessing(ctx context.Context, runID string, startedAt time.Time) error {
	const query = `
UPDATE annotation_runs
SET status = 'processing', started_at = ?, completed_at = NULL,
    error_code = NULL, error_message = NULL, retryable = NULL
WHERE id = ? AND (status = 'queued' OR (status = 'failed' AND retryable = 1))`
	res, err := r.DB.ExecContext(ctx, query, formatSQLiteTime(startedAt), runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var status string
		err := r.DB.QueryRowContext(ctx, `SELECT status FROM annotation_runs WHERE id = ?`, runID).Scan(&status)
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
func (r *SQLiteRepo) Complete(ctx context.Context, runID string, c Completion, completedAt time.Time) error {
	const query = `
UPDATE annotation_runs
SET status = 'completed', output_key = ?, reused = ?, setup_seconds = ?, parse_seconds = ?,
    syntax_count = ?, semantic_count = ?, completed_at = ?
WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, query, c.OutputKey, c.Reused, c.SetupSeconds, c.ParseSeconds,
		c.SyntaxCount, c.SemanticCount, formatSQLiteTime(completedAt), runID)
	return affectedOne(res, err)
}

// Fail records a failed run.
func (r *SQLiteRepo) Fail(ctx context.Context, runID string, f Failure, completedAt time.Time) error {
	const query = `
UPDATE annotation_runs
SET status = 'failed', error_code = ?, error_message = ?, retryable = ?, completed_at = ?
WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, query, f.Code, f.Message, f.Retryable, formatSQLiteTime(completedAt), runID)
	return affectedOne(res, err)
}

func scanSQLiteRun(row rowScanner) (Run, error) {
	var run Run
	var outputKey sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var retryable sql.NullBool
	var createdAt string
	var startedAt sql.NullString
	var completedAt sql.NullString
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
		&createdAt,
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
	if run.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = parseNullSQLiteTime(startedAt); err != nil {
		return Run{}, err
	}
	if run.CompletedAt, err = parseNullSQLiteTime(completedAt); err != nil {
		return Run{}, err
	}
	return run, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func parseNullSQLiteTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseSQLiteTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ Repo = (*SQLiteRepo)(nil)
