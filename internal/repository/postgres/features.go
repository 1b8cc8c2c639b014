package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/service/insight"
)

// metricWindows is the jsonb layout of a feature row's per-metric windows.
type metricWindows struct {
	Spend       domain.MetricWindow `json:"spend"`
	Frequency   domain.MetricWindow `json:"frequency"`
	CTR         domain.MetricWindow `json:"ctr"`
	CPC         domain.MetricWindow `json:"cpc"`
	CPM         domain.MetricWindow `json:"cpm"`
	Reach       domain.MetricWindow `json:"reach"`
	ResultCount domain.MetricWindow `json:"result_count"`
	CPR         domain.MetricWindow `json:"cpr"`
}

func windowsOf(f domain.AdWeeklyFeature) metricWindows {
	return metricWindows{
		Spend: f.Spend, Frequency: f.Frequency, CTR: f.CTR, CPC: f.CPC,
		CPM: f.CPM, Reach: f.Reach, ResultCount: f.ResultCount, CPR: f.CPR,
	}
}

func (m metricWindows) apply(f *domain.AdWeeklyFeature) {
	f.Spend, f.Frequency, f.CTR, f.CPC = m.Spend, m.Frequency, m.CTR, m.CPC
	f.CPM, f.Reach, f.ResultCount, f.CPR = m.CPM, m.Reach, m.ResultCount, m.CPR
}

// UpsertFeatures writes computed feature rows, replacing existing
// (ad, week) rows. Features are derived state and always safe to rebuild.
func (r *Repo) UpsertFeatures(ctx context.Context, rows []domain.AdWeeklyFeature) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, f := range rows {
		metrics, err := jsonArg(windowsOf(f))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ad_weekly_features
				(account_id, ad_id, week_start, primary_family, metrics,
				 frequency_slope_4w, ctr_slope_4w, reach_growth_rate, spend_change_pct,
				 weeks_with_data, min_results_met, computed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (ad_id, week_start) DO UPDATE SET
				account_id = EXCLUDED.account_id,
				primary_family = EXCLUDED.primary_family,
				metrics = EXCLUDED.metrics,
				frequency_slope_4w = EXCLUDED.frequency_slope_4w,
				ctr_slope_4w = EXCLUDED.ctr_slope_4w,
				reach_growth_rate = EXCLUDED.reach_growth_rate,
				spend_change_pct = EXCLUDED.spend_change_pct,
				weeks_with_data = EXCLUDED.weeks_with_data,
				min_results_met = EXCLUDED.min_results_met,
				computed_at = EXCLUDED.computed_at
		`, f.AccountID, f.AdID, f.WeekStart, f.PrimaryFamily, metrics,
			f.FrequencySlope4w, f.CTRSlope4w, f.ReachGrowthRate, f.SpendChangePct,
			f.WeeksWithData, f.MinResultsMet, f.ComputedAt); err != nil {
			return fmt.Errorf("upsert feature %s/%s: %w", f.AdID, f.WeekStart.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectFeatureCols = `
	SELECT account_id, ad_id, week_start, primary_family, metrics,
	       frequency_slope_4w, ctr_slope_4w, reach_growth_rate, spend_change_pct,
	       weeks_with_data, min_results_met, computed_at
	FROM ad_weekly_features`

// ListFeatures returns feature rows matching the filter, ordered by
// (ad_id, week_start).
func (r *Repo) ListFeatures(ctx context.Context, f insight.FeatureFilter) ([]domain.AdWeeklyFeature, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}

	q := selectFeatureCols + ` WHERE account_id = $1`
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
	q += fmt.Sprintf(" ORDER BY ad_id, week_start LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	return r.queryFeatures(ctx, q, args...)
}

// FeaturesWindow returns feature rows for an account within [from, to],
// ordered by (ad_id, week_start).
func (r *Repo) FeaturesWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.AdWeeklyFeature, error) {
	q := selectFeatureCols + `
		WHERE account_id = $1 AND week_start >= $2 AND week_start <= $3
		ORDER BY ad_id, week_start`
	return r.queryFeatures(ctx, q, accountID, from, to)
}

func (r *Repo) queryFeatures(ctx context.Context, q string, args ...interface{}) ([]domain.AdWeeklyFeature, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	var out []domain.AdWeeklyFeature
	for rows.Next() {
		var f domain.AdWeeklyFeature
		var metrics []byte
		if err := rows.Scan(
			&f.AccountID, &f.AdID, &f.WeekStart, &f.PrimaryFamily, &metrics,
			&f.FrequencySlope4w, &f.CTRSlope4w, &f.ReachGrowthRate, &f.SpendChangePct,
			&f.WeeksWithData, &f.MinResultsMet, &f.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		var mw metricWindows
		if err := json.Unmarshal(metrics, &mw); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		mw.apply(&f)
		out = append(out, f)
	}
	return out, rows.Err()
}
