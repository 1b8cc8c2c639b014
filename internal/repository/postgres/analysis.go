package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// Analyzer outputs are stored as full-replace snapshots per
// (account, kind): recomputable from scratch, never patched.
const (
	snapshotPareto    = "pareto"
	snapshotLifecycle = "lifecycle"
	snapshotCurve     = "response_curve"
	snapshotTracking  = "tracking_health"
	snapshotLagDeps   = "lag_dependencies"
	snapshotRisk      = "creative_risk"
)

// ReplaceSnapshot swaps one analyzer output for an account.
func (r *Repo) ReplaceSnapshot(ctx context.Context, accountID, kind string, periodStart, periodEnd time.Time, payload any, computedAt time.Time) error {
	body, err := jsonArg(payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_snapshots (account_id, kind, period_start, period_end, payload, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (account_id, kind) DO UPDATE SET
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			payload = EXCLUDED.payload,
			computed_at = EXCLUDED.computed_at
	`, accountID, kind, periodStart, periodEnd, body, computedAt)
	if err != nil {
		return fmt.Errorf("replace %s snapshot: %w", kind, err)
	}
	return nil
}

func (r *Repo) snapshot(ctx context.Context, accountID, kind string, dst any) error {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM analysis_snapshots WHERE account_id = $1 AND kind = $2
	`, accountID, kind).Scan(&payload)
	if err == sql.ErrNoRows {
		// No snapshot yet: leave dst empty, readers get an empty list.
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s snapshot: %w", kind, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("unmarshal %s snapshot: %w", kind, err)
	}
	return nil
}

// SavePareto stores the Pareto/waste output for an account.
func (r *Repo) SavePareto(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.ParetoStat, now time.Time) error {
	return r.ReplaceSnapshot(ctx, accountID, snapshotPareto, periodStart, periodEnd, stats, now)
}

// ParetoStats returns the latest Pareto/waste output for an account.
func (r *Repo) ParetoStats(ctx context.Context, accountID string) ([]domain.ParetoStat, error) {
	var out []domain.ParetoStat
	err := r.snapshot(ctx, accountID, snapshotPareto, &out)
	return out, err
}

// SaveLifecycle stores the creative lifecycle output for an account.
func (r *Repo) SaveLifecycle(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.CreativeLifecycleStat, now time.Time) error {
	return r.ReplaceSnapshot(ctx, accountID, snapshotLifecycle, periodStart, periodEnd, stats, now)
}

// LifecycleStats returns the latest creative lifecycle output for an account.
func (r *Repo) LifecycleStats(ctx context.Context, accountID string) ([]domain.CreativeLifecycleStat, error) {
	var out []domain.CreativeLifecycleStat
	err := r.snapshot(ctx, accountID, snapshotLifecycle, &out)
	return out, err
}

// SaveResponseCurves stores the response-curve buckets for an account.
func (r *Repo) SaveResponseCurves(ctx context.Context, accountID string, periodStart, periodEnd time.Time, buckets []domain.ResponseCurveBucket, now time.Time) error {
	return r.ReplaceSnapshot(ctx, accountID, snapshotCurve, periodStart, periodEnd, buckets, now)
}

// ResponseCurves returns the latest response-curve buckets for an account.
func (r *Repo) ResponseCurves(ctx context.Context, accountID string) ([]domain.ResponseCurveBucket, error) {
	var out []domain.ResponseCurveBucket
	err := r.snapshot(ctx, accountID, snapshotCurve, &out)
	return out, err
}

// SaveTrackingIssues stores the tracking-health issues for an account.
func (r *Repo) SaveTrackingIssues(ctx context.Context, accountID string, periodStart, periodEnd time.Time, issues []domain.TrackingHealthIssue, now time.Time) error {
	return r.ReplaceSnapshot(ctx, accountID, snapshotTracking, periodStart, periodEnd, issues, now)
}

// TrackingIssues returns the latest tracking-health issues for an account.
func (r *Repo) TrackingIssues(ctx context.Context, accountID string) ([]domain.TrackingHealthIssue, error) {
	var out []domain.TrackingHealthIssue
	err := r.snapshot(ctx, accountID, snapshotTracking, &out)
	return out, err
}

// SaveLagDependencies stores the learned lag table for an account.
func (r *Repo) SaveLagDependencies(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.LagDependencyStat, now time.Time) error {
	return r.ReplaceSnapshot(ctx, accountID, snapshotLagDeps, periodStart, periodEnd, stats, now)
}

// LagDependencies returns the learned lag table for an account.
func (r *Repo) LagDependencies(ctx context.Context, accountID string) ([]domain.LagDependencyStat, error) {
	var out []domain.LagDependencyStat
	err := r.snapshot(ctx, accountID, snapshotLagDeps, &out)
	return out, err
}

// SaveCreativeRisks stores the creative risk rows for an account.
func (r *Repo) SaveCreativeRisks(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.CreativeRiskStat, now time.Time) error {
	return r.ReplaceSnapshot(ctx, accountID, snapshotRisk, periodStart, periodEnd, stats, now)
}

// CreativeRisks returns the latest creative risk rows for an account.
func (r *Repo) CreativeRisks(ctx context.Context, accountID string) ([]domain.CreativeRiskStat, error) {
	var out []domain.CreativeRiskStat
	err := r.snapshot(ctx, accountID, snapshotRisk, &out)
	return out, err
}
