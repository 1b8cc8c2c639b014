package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// ReplaceWeekResults swaps all result rows for one (account, week)
// atomically. Rebuilding a week always starts from its raw rows, so a
// delete-then-insert keeps stale families from surviving a re-run.
func (r *Repo) ReplaceWeekResults(ctx context.Context, accountID string, week time.Time, rows []domain.WeeklyResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM ad_weekly_results WHERE account_id = $1 AND week_start = $2
	`, accountID, week); err != nil {
		return fmt.Errorf("delete week results: %w", err)
	}

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ad_weekly_results
				(account_id, ad_id, week_start, result_family, result_count, spend, cpr, computed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, row.AccountID, row.AdID, row.WeekStart, row.ResultFamily,
			row.ResultCount, row.Spend, row.CPR, row.ComputedAt); err != nil {
			return fmt.Errorf("insert result %s/%s: %w", row.AdID, row.ResultFamily, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ResultsWindow returns result rows for an account within [from, to],
// ordered by (ad_id, week_start, result_family).
func (r *Repo) ResultsWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.WeeklyResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, ad_id, week_start, result_family, result_count, spend, cpr, computed_at
		FROM ad_weekly_results
		WHERE account_id = $1 AND week_start >= $2 AND week_start <= $3
		ORDER BY ad_id, week_start, result_family
	`, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("results window: %w", err)
	}
	defer rows.Close()

	var out []domain.WeeklyResult
	for rows.Next() {
		var row domain.WeeklyResult
		if err := rows.Scan(
			&row.AccountID, &row.AdID, &row.WeekStart, &row.ResultFamily,
			&row.ResultCount, &row.Spend, &row.CPR, &row.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
