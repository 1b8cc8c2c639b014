package domain

import "time"

// MetricWindow groups the current value, trailing-median baseline,
// percentage delta against the baseline, and two lag values for one
// metric. Baseline, delta, and lags stay nil until enough history
// exists; downstream code must check before trusting them.
type MetricWindow struct {
	Current  *float64 `json:"current"`
	Baseline *float64 `json:"baseline"`
	DeltaPct *float64 `json:"delta_pct"`
	Lag1     *float64 `json:"lag1"`
	Lag2     *float64 `json:"lag2"`
}

// AdWeeklyFeature is one computed feature row per (ad, week). It fixes a
// primary result family for the week and carries baselined windows for
// every scored metric plus short-term slopes and data-quality flags.
type AdWeeklyFeature struct {
	AccountID     string       `json:"account_id" db:"account_id"`
	AdID          string       `json:"ad_id" db:"ad_id"`
	WeekStart     time.Time    `json:"week_start" db:"week_start"`
	PrimaryFamily ResultFamily `json:"primary_family" db:"primary_family"`

	Spend       MetricWindow `json:"spend"`
	Frequency   MetricWindow `json:"frequency"`
	CTR         MetricWindow `json:"ctr"`
	CPC         MetricWindow `json:"cpc"`
	CPM         MetricWindow `json:"cpm"`
	Reach       MetricWindow `json:"reach"`
	ResultCount MetricWindow `json:"result_count"`
	CPR         MetricWindow `json:"cpr"`

	// Two-point slope over the trailing 4 weeks; nil with <2 data points.
	FrequencySlope4w *float64 `json:"frequency_slope_4w" db:"frequency_slope_4w"`
	CTRSlope4w       *float64 `json:"ctr_slope_4w" db:"ctr_slope_4w"`

	ReachGrowthRate *float64 `json:"reach_growth_rate" db:"reach_growth_rate"`
	SpendChangePct  *float64 `json:"spend_change_pct" db:"spend_change_pct"`

	WeeksWithData int  `json:"weeks_with_data" db:"weeks_with_data"`
	MinResultsMet bool `json:"min_results_met" db:"min_results_met"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}
