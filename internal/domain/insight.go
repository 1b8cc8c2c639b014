package domain

import (
	"time"
)

// ActionCount is one (action_type, count) pair from the platform's raw
// action list for an ad week.
type ActionCount struct {
	ActionType string `json:"action_type"`
	Count      int64  `json:"count"`
}

// WeeklyInsight is one raw performance row per (ad, calendar week).
// Weeks start on Monday. Rows are immutable for a given week except that
// a later re-sync overwrites the same (ad, week) key wholesale.
type WeeklyInsight struct {
	AccountID  string    `json:"account_id" db:"account_id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	AdsetID    string    `json:"adset_id" db:"adset_id"`
	AdID       string    `json:"ad_id" db:"ad_id"`
	AdName     string    `json:"ad_name" db:"ad_name"`
	WeekStart  time.Time `json:"week_start" db:"week_start"`

	OptimizationGoal string `json:"optimization_goal" db:"optimization_goal"`

	// Platform diagnostics ranking the ad against its auction peers.
	// Empty when the ad had too little delivery to be rated.
	QualityRanking    string `json:"quality_ranking,omitempty" db:"quality_ranking"`
	EngagementRanking string `json:"engagement_ranking,omitempty" db:"engagement_ranking"`
	ConversionRanking string `json:"conversion_ranking,omitempty" db:"conversion_ranking"`

	Spend       float64 `json:"spend" db:"spend"`
	Impressions int64   `json:"impressions" db:"impressions"`
	Reach       int64   `json:"reach" db:"reach"`
	Frequency   float64 `json:"frequency" db:"frequency"`
	Clicks      int64   `json:"clicks" db:"clicks"`
	LinkClicks  int64   `json:"link_clicks" db:"link_clicks"`
	CPM         float64 `json:"cpm" db:"cpm"`
	CTR         float64 `json:"ctr" db:"ctr"`
	CPC         float64 `json:"cpc" db:"cpc"`

	Actions []ActionCount `json:"actions" db:"actions"`

	// Optional video depth counters; nil when the creative has no video.
	VideoPlays    *int64 `json:"video_plays,omitempty" db:"video_plays"`
	VideoP25      *int64 `json:"video_p25,omitempty" db:"video_p25"`
	VideoP50      *int64 `json:"video_p50,omitempty" db:"video_p50"`
	VideoP75      *int64 `json:"video_p75,omitempty" db:"video_p75"`
	VideoComplete *int64 `json:"video_complete,omitempty" db:"video_complete"`

	SyncedAt time.Time `json:"synced_at" db:"synced_at"`
}

// WeekStartOf truncates t to the Monday of its calendar week, UTC midnight.
func WeekStartOf(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
