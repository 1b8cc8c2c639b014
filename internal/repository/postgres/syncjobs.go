package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/service/insight"
)

const selectJobCols = `
	SELECT id, account_id, job_type, status, window_start, window_end, cursor,
	       attempts, COALESCE(last_error,''), last_error_at,
	       inserted, updated, errored, created_at, started_at, completed_at
	FROM sync_jobs`

// CreateJob inserts a pending sync job.
func (r *Repo) CreateJob(ctx context.Context, j *domain.SyncJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_jobs
			(id, account_id, job_type, status, window_start, window_end, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, j.ID, j.AccountID, j.Type, j.Status, j.WindowStart, j.WindowEnd, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob returns one job by ID.
func (r *Repo) GetJob(ctx context.Context, id string) (*domain.SyncJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, selectJobCols+` WHERE id = $1`, id).Scan)
	if err == sql.ErrNoRows {
		return nil, insight.ErrNotFound
	}
	return j, err
}

// ListJobs returns jobs matching the filter, newest first.
func (r *Repo) ListJobs(ctx context.Context, f insight.JobFilter) ([]domain.SyncJob, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := selectJobCols + ` WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if f.AccountID != "" {
		q += fmt.Sprintf(" AND account_id = $%d", idx)
		args = append(args, f.AccountID)
		idx++
	}
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Type != "" {
		q += fmt.Sprintf(" AND job_type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.SyncJob
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// HasActiveJob reports whether a pending or running job of the given type
// exists for the account.
func (r *Repo) HasActiveJob(ctx context.Context, accountID string, t domain.JobType) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sync_jobs
			WHERE account_id = $1 AND job_type = $2 AND status IN ('pending','running')
		)
	`, accountID, t).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("has active job: %w", err)
	}
	return active, nil
}

// ClaimNextJob atomically claims the oldest pending job and marks it
// running. FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming
// the same row. Returns nil when no work is pending.
func (r *Repo) ClaimNextJob(ctx context.Context, now time.Time) (*domain.SyncJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	j, err := scanJob(tx.QueryRowContext(ctx, selectJobCols+`
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = 'running', attempts = attempts + 1, started_at = $1
		WHERE id = $2
	`, now, j.ID); err != nil {
		return nil, fmt.Errorf("mark running: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	j.Status = domain.JobRunning
	j.Attempts++
	j.StartedAt = &now
	return j, nil
}

// SetJobCursor checkpoints the last fully materialized week and the
// running result summary. Called after every completed week so a retried
// job resumes instead of restarting.
func (r *Repo) SetJobCursor(ctx context.Context, id string, cursor time.Time, sum domain.ResultSummary) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs SET cursor = $1, inserted = $2, updated = $3, errored = $4
		WHERE id = $5
	`, cursor, sum.Inserted, sum.Updated, sum.Errored, id)
	if err != nil {
		return fmt.Errorf("set job cursor: %w", err)
	}
	return nil
}

// CompleteJob marks a job completed with its final summary.
func (r *Repo) CompleteJob(ctx context.Context, id string, sum domain.ResultSummary, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = 'completed', inserted = $1, updated = $2, errored = $3, completed_at = $4
		WHERE id = $5
	`, sum.Inserted, sum.Updated, sum.Errored, now, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// DeferJob returns a job to pending and gives the claimed attempt back.
// Used when throttling or lock contention, not the job itself, stopped
// the run, so the retry budget only counts real failures.
func (r *Repo) DeferJob(ctx context.Context, id string, cause string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = 'pending',
		    attempts = GREATEST(attempts - 1, 0),
		    last_error = $1, last_error_at = $2
		WHERE id = $3
	`, cause, now, id)
	if err != nil {
		return fmt.Errorf("defer job: %w", err)
	}
	return nil
}

// FailJob records a failed attempt. Jobs under maxAttempts go back to
// pending for the next sweep; the cursor survives, so the retry resumes.
func (r *Repo) FailJob(ctx context.Context, id string, cause string, maxAttempts int, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = CASE WHEN attempts >= $1 THEN 'failed' ELSE 'pending' END,
		    last_error = $2, last_error_at = $3,
		    completed_at = CASE WHEN attempts >= $1 THEN $3 ELSE NULL END
		WHERE id = $4
	`, maxAttempts, cause, now, id)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func scanJob(scan func(...any) error) (*domain.SyncJob, error) {
	var j domain.SyncJob
	if err := scan(
		&j.ID, &j.AccountID, &j.Type, &j.Status, &j.WindowStart, &j.WindowEnd, &j.Cursor,
		&j.Attempts, &j.LastError, &j.LastErrorAt,
		&j.Summary.Inserted, &j.Summary.Updated, &j.Summary.Errored,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
