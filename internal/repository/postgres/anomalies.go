package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/service/insight"
)

// UpsertAnomalies writes detected anomalies. Metric fields are refreshed
// on re-detection, but status and review_note belong to the reviewer: the
// detector never overwrites them.
func (r *Repo) UpsertAnomalies(ctx context.Context, rows []domain.AdWeeklyAnomaly) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range rows {
		triggers, err := jsonArg(a.LikelyTriggers)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ad_weekly_anomalies
				(id, account_id, ad_id, week_start, result_family, anomaly_type,
				 current_value, baseline_value, delta_pct, anomaly_score, confidence,
				 likely_triggers, status, review_note, computed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,'',$14)
			ON CONFLICT (ad_id, week_start, result_family, anomaly_type) DO UPDATE SET
				current_value = EXCLUDED.current_value,
				baseline_value = EXCLUDED.baseline_value,
				delta_pct = EXCLUDED.delta_pct,
				anomaly_score = EXCLUDED.anomaly_score,
				confidence = EXCLUDED.confidence,
				likely_triggers = EXCLUDED.likely_triggers,
				computed_at = EXCLUDED.computed_at
		`, a.ID, a.AccountID, a.AdID, a.WeekStart, a.ResultFamily, a.Type,
			a.CurrentValue, a.BaselineValue, a.DeltaPct, a.Score, a.Confidence,
			triggers, a.Status, a.ComputedAt); err != nil {
			return fmt.Errorf("upsert anomaly %s/%s: %w", a.AdID, a.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectAnomalyCols = `
	SELECT id, account_id, ad_id, week_start, result_family, anomaly_type,
	       current_value, baseline_value, delta_pct, anomaly_score, confidence,
	       likely_triggers, status, review_note, computed_at
	FROM ad_weekly_anomalies`

// ListAnomalies returns anomaly rows matching the filter, highest score first.
func (r *Repo) ListAnomalies(ctx context.Context, f insight.AnomalyFilter) ([]domain.AdWeeklyAnomaly, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}

	q := selectAnomalyCols + ` WHERE account_id = $1`
	args := []interface{}{f.AccountID}
	idx := 2

	if f.AdID != "" {
		q += fmt.Sprintf(" AND ad_id = $%d", idx)
		args = append(args, f.AdID)
		idx++
	}
	if f.WeekFrom != nil {
		q += fmt.Sprintf(" AND week_start >= $%d", idx)
		args = append(args, *f.WeekFrom)
		idx++
	}
	if f.WeekTo != nil {
		q += fmt.Sprintf(" AND week_start <= $%d", idx)
		args = append(args, *f.WeekTo)
		idx++
	}
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Type != "" {
		q += fmt.Sprintf(" AND anomaly_type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	if f.MinScore > 0 {
		q += fmt.Sprintf(" AND anomaly_score >= $%d", idx)
		args = append(args, f.MinScore)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY anomaly_score DESC, ad_id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var out []domain.AdWeeklyAnomaly
	for rows.Next() {
		a, err := scanAnomaly(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AnomaliesWindow returns anomaly rows for an account within [from, to],
// ordered by (ad_id, week_start).
func (r *Repo) AnomaliesWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.AdWeeklyAnomaly, error) {
	rows, err := r.db.QueryContext(ctx, selectAnomalyCols+`
		WHERE account_id = $1 AND week_start >= $2 AND week_start <= $3
		ORDER BY ad_id, week_start
	`, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("anomalies window: %w", err)
	}
	defer rows.Close()

	var out []domain.AdWeeklyAnomaly
	for rows.Next() {
		a, err := scanAnomaly(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAnomaly returns one anomaly by ID.
func (r *Repo) GetAnomaly(ctx context.Context, id string) (*domain.AdWeeklyAnomaly, error) {
	row := r.db.QueryRowContext(ctx, selectAnomalyCols+` WHERE id = $1`, id)
	a, err := scanAnomaly(row.Scan)
	if err == sql.ErrNoRows {
		return nil, insight.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetAnomalyStatus updates the review status and note of one anomaly.
func (r *Repo) SetAnomalyStatus(ctx context.Context, id string, status domain.AnomalyStatus, note string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ad_weekly_anomalies SET status = $1, review_note = $2 WHERE id = $3
	`, status, note, id)
	if err != nil {
		return fmt.Errorf("set anomaly status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return insight.ErrNotFound
	}
	return nil
}

func scanAnomaly(scan func(...any) error) (*domain.AdWeeklyAnomaly, error) {
	var a domain.AdWeeklyAnomaly
	var triggers []byte
	if err := scan(
		&a.ID, &a.AccountID, &a.AdID, &a.WeekStart, &a.ResultFamily, &a.Type,
		&a.CurrentValue, &a.BaselineValue, &a.DeltaPct, &a.Score, &a.Confidence,
		&triggers, &a.Status, &a.ReviewNote, &a.ComputedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan anomaly: %w", err)
	}
	if len(triggers) > 0 {
		if err := json.Unmarshal(triggers, &a.LikelyTriggers); err != nil {
			return nil, fmt.Errorf("unmarshal triggers: %w", err)
		}
	}
	return &a, nil
}
