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

const upsertInsightQ = `
	INSERT INTO ad_weekly_insights
		(account_id, campaign_id, adset_id, ad_id, ad_name, week_start,
		 optimization_goal, quality_ranking, engagement_ranking, conversion_ranking,
		 spend, impressions, reach, frequency, clicks,
		 link_clicks, cpm, ctr, cpc, actions,
		 video_plays, video_p25, video_p50, video_p75, video_complete, synced_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	ON CONFLICT (ad_id, week_start) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		campaign_id = EXCLUDED.campaign_id,
		adset_id = EXCLUDED.adset_id,
		ad_name = EXCLUDED.ad_name,
		optimization_goal = EXCLUDED.optimization_goal,
		quality_ranking = EXCLUDED.quality_ranking,
		engagement_ranking = EXCLUDED.engagement_ranking,
		conversion_ranking = EXCLUDED.conversion_ranking,
		spend = EXCLUDED.spend,
		impressions = EXCLUDED.impressions,
		reach = EXCLUDED.reach,
		frequency = EXCLUDED.frequency,
		clicks = EXCLUDED.clicks,
		link_clicks = EXCLUDED.link_clicks,
		cpm = EXCLUDED.cpm,
		ctr = EXCLUDED.ctr,
		cpc = EXCLUDED.cpc,
		actions = EXCLUDED.actions,
		video_plays = EXCLUDED.video_plays,
		video_p25 = EXCLUDED.video_p25,
		video_p50 = EXCLUDED.video_p50,
		video_p75 = EXCLUDED.video_p75,
		video_complete = EXCLUDED.video_complete,
		synced_at = EXCLUDED.synced_at
	RETURNING (xmax = 0)`

// UpsertInsights writes a batch of raw rows, replacing existing
// (ad, week) rows wholesale. A re-sync overwrites, never merges.
func (r *Repo) UpsertInsights(ctx context.Context, rows []domain.WeeklyInsight) (int, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var inserted, updated int
	for _, row := range rows {
		actions, err := jsonArg(row.Actions)
		if err != nil {
			return 0, 0, err
		}

		// xmax = 0 only on freshly inserted tuples.
		var fresh bool
		err = tx.QueryRowContext(ctx, upsertInsightQ,
			row.AccountID, row.CampaignID, row.AdsetID, row.AdID, row.AdName, row.WeekStart,
			row.OptimizationGoal, row.QualityRanking, row.EngagementRanking, row.ConversionRanking,
			row.Spend, row.Impressions, row.Reach, row.Frequency, row.Clicks,
			row.LinkClicks, row.CPM, row.CTR, row.CPC, actions,
			row.VideoPlays, row.VideoP25, row.VideoP50, row.VideoP75, row.VideoComplete, row.SyncedAt,
		).Scan(&fresh)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert insight %s/%s: %w", row.AdID, row.WeekStart.Format("2006-01-02"), err)
		}
		if fresh {
			inserted++
		} else {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, updated, nil
}

// InsightsWindow returns raw rows for an account within [from, to],
// ordered by (ad_id, week_start).
func (r *Repo) InsightsWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.WeeklyInsight, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, campaign_id, adset_id, ad_id, ad_name, week_start,
		       optimization_goal, quality_ranking, engagement_ranking, conversion_ranking,
		       spend, impressions, reach, frequency, clicks,
		       link_clicks, cpm, ctr, cpc, actions,
		       video_plays, video_p25, video_p50, video_p75, video_complete, synced_at
		FROM ad_weekly_insights
		WHERE account_id = $1 AND week_start >= $2 AND week_start <= $3
		ORDER BY ad_id, week_start
	`, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("insights window: %w", err)
	}
	defer rows.Close()

	var out []domain.WeeklyInsight
	for rows.Next() {
		var in domain.WeeklyInsight
		var actions []byte
		if err := rows.Scan(
			&in.AccountID, &in.CampaignID, &in.AdsetID, &in.AdID, &in.AdName, &in.WeekStart,
			&in.OptimizationGoal, &in.QualityRanking, &in.EngagementRanking, &in.ConversionRanking,
			&in.Spend, &in.Impressions, &in.Reach, &in.Frequency, &in.Clicks,
			&in.LinkClicks, &in.CPM, &in.CTR, &in.CPC, &actions,
			&in.VideoPlays, &in.VideoP25, &in.VideoP50, &in.VideoP75, &in.VideoComplete, &in.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &in.Actions); err != nil {
				return nil, fmt.Errorf("unmarshal actions: %w", err)
			}
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// ReplaceMappings swaps the classification tables atomically. The table
// holds a single row.
func (r *Repo) ReplaceMappings(ctx context.Context, t domain.MappingTables) error {
	actions, err := jsonArg(t.Actions)
	if err != nil {
		return err
	}
	goals, err := jsonArg(t.Goals)
	if err != nil {
		return err
	}
	defaults, err := jsonArg(t.GoalDefaults)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO mapping_tables (id, actions, goals, goal_defaults, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			actions = EXCLUDED.actions,
			goals = EXCLUDED.goals,
			goal_defaults = EXCLUDED.goal_defaults,
			updated_at = EXCLUDED.updated_at
	`, actions, goals, defaults, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("replace mappings: %w", err)
	}
	return nil
}

// Mappings returns the current classification tables.
func (r *Repo) Mappings(ctx context.Context) (*domain.MappingTables, error) {
	var actions, goals, defaults []byte
	t := &domain.MappingTables{}
	err := r.db.QueryRowContext(ctx, `
		SELECT actions, goals, goal_defaults, updated_at FROM mapping_tables WHERE id = 1
	`).Scan(&actions, &goals, &defaults, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, insight.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mappings: %w", err)
	}

	if err := json.Unmarshal(actions, &t.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	if err := json.Unmarshal(goals, &t.Goals); err != nil {
		return nil, fmt.Errorf("unmarshal goals: %w", err)
	}
	if err := json.Unmarshal(defaults, &t.GoalDefaults); err != nil {
		return nil, fmt.Errorf("unmarshal goal defaults: %w", err)
	}
	return t, nil
}
