package domain

import "time"

// Longitudinal analyzer outputs. All of these are recomputable from
// scratch, fully replaced on each run (upsert keyed by account+scope+period),
// and never incrementally patched.

// ParetoStat summarizes spend concentration for one (account, family, period).
type ParetoStat struct {
	AccountID    string       `json:"account_id" db:"account_id"`
	ResultFamily ResultFamily `json:"result_family" db:"result_family"`
	PeriodStart  time.Time    `json:"period_start" db:"period_start"`
	PeriodEnd    time.Time    `json:"period_end" db:"period_end"`

	TotalSpend   float64 `json:"total_spend" db:"total_spend"`
	TotalResults int64   `json:"total_results" db:"total_results"`

	// Share of all results delivered by the top 10% of ads ranked by spend.
	Top10PctResultShare float64 `json:"top10pct_result_share" db:"top10pct_result_share"`

	ZeroResultSpend float64 `json:"zero_result_spend" db:"zero_result_spend"`
	ZeroResultWeeks int     `json:"zero_result_weeks" db:"zero_result_weeks"`

	Eaters []BudgetEater `json:"eaters" db:"eaters"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// EaterPriority ranks budget eaters for remediation ordering.
type EaterPriority string

const (
	EaterCritical EaterPriority = "critical"
	EaterHigh     EaterPriority = "high"
	EaterMedium   EaterPriority = "medium"
)

// BudgetEater is an ad that burns spend without proportional results
// within a Pareto analysis period.
type BudgetEater struct {
	AdID          string        `json:"ad_id"`
	AdsetID       string        `json:"adset_id"`
	Spend         float64       `json:"spend"`
	ResultCount   int64         `json:"result_count"`
	CPR           *float64      `json:"cpr"`
	SpendSharePct float64       `json:"spend_share_pct"`
	Priority      EaterPriority `json:"priority"`
	Reason        string        `json:"reason"`
}

// CreativeLifecycleStat tracks a creative fingerprint from first spend to
// its first anomaly ("death week"). DeathWeek is nil while the creative
// has never gone anomalous.
type CreativeLifecycleStat struct {
	AccountID   string    `json:"account_id" db:"account_id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	FirstWeek   time.Time `json:"first_week" db:"first_week"`

	DeathWeek     *time.Time `json:"death_week" db:"death_week"`
	LifetimeWeeks *int       `json:"lifetime_weeks" db:"lifetime_weeks"`

	Fatigued              bool   `json:"fatigued" db:"fatigued"`
	FatigueRecommendation string `json:"fatigue_recommendation,omitempty" db:"fatigue_recommendation"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// ResponseCurveBucket is one spend-range bucket of the spend-vs-efficiency
// curve for an (account, family, period).
type ResponseCurveBucket struct {
	AccountID    string       `json:"account_id" db:"account_id"`
	ResultFamily ResultFamily `json:"result_family" db:"result_family"`
	PeriodStart  time.Time    `json:"period_start" db:"period_start"`

	SpendLow  float64 `json:"spend_low" db:"spend_low"`
	SpendHigh float64 `json:"spend_high" db:"spend_high"`

	Weeks       int      `json:"weeks" db:"weeks"`
	TotalSpend  float64  `json:"total_spend" db:"total_spend"`
	Results     int64    `json:"results" db:"results"`
	MarginalCPR *float64 `json:"marginal_cpr" db:"marginal_cpr"`

	SweetSpot  bool      `json:"sweet_spot" db:"sweet_spot"`
	Saturated  bool      `json:"saturated" db:"saturated"`
	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// TrackingIssueKind separates measurement problems from real performance
// problems; the remediation differs (fix tracking vs fix creative).
type TrackingIssueKind string

const (
	IssueBrokenTracking TrackingIssueKind = "broken_tracking"
	IssueHighVolatility TrackingIssueKind = "high_volatility"
)

// TrackingHealthIssue flags a probable measurement or attribution problem
// for one (ad, family) over a run of weeks.
type TrackingHealthIssue struct {
	AccountID    string            `json:"account_id" db:"account_id"`
	AdID         string            `json:"ad_id" db:"ad_id"`
	ResultFamily ResultFamily      `json:"result_family" db:"result_family"`
	Kind         TrackingIssueKind `json:"kind" db:"kind"`

	WeekStart time.Time `json:"week_start" db:"week_start"`
	WeekEnd   time.Time `json:"week_end" db:"week_end"`

	ConsecutiveWeeks int      `json:"consecutive_weeks" db:"consecutive_weeks"`
	LinkClicks       int64    `json:"link_clicks" db:"link_clicks"`
	SpendAtRisk      float64  `json:"spend_at_risk" db:"spend_at_risk"`
	VolatilityCV     *float64 `json:"volatility_cv" db:"volatility_cv"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// LagDependencyStat is one bin of the learned lead/lag relationship: how
// often a movement of Metric into [BinLow, BinHigh) was followed by a CPR
// spike Lag weeks later, and how bad the spike typically was.
type LagDependencyStat struct {
	AccountID    string       `json:"account_id" db:"account_id"`
	ResultFamily ResultFamily `json:"result_family" db:"result_family"`
	Metric       string       `json:"metric" db:"metric"`
	Lag          int          `json:"lag_weeks" db:"lag_weeks"`

	BinLow  float64 `json:"bin_low" db:"bin_low"`
	BinHigh float64 `json:"bin_high" db:"bin_high"`

	Samples        int      `json:"samples" db:"samples"`
	SpikeRate      float64  `json:"spike_rate" db:"spike_rate"`
	MedianCPRDelta *float64 `json:"median_cpr_delta" db:"median_cpr_delta"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// RiskLevel classifies a creative risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// CreativeRiskStat scores a creative fingerprint 0-100 against its target
// CPR, with a trend label and a budget recommendation.
type CreativeRiskStat struct {
	AccountID    string       `json:"account_id" db:"account_id"`
	Fingerprint  string       `json:"fingerprint" db:"fingerprint"`
	ResultFamily ResultFamily `json:"result_family" db:"result_family"`

	AdsCount     int      `json:"ads_count" db:"ads_count"`
	TotalSpend   float64  `json:"total_spend" db:"total_spend"`
	TotalResults int64    `json:"total_results" db:"total_results"`
	AggCPR       *float64 `json:"agg_cpr" db:"agg_cpr"`
	ShortCPR     *float64 `json:"short_cpr" db:"short_cpr"`
	LongCPR      *float64 `json:"long_cpr" db:"long_cpr"`

	RiskScore      int       `json:"risk_score" db:"risk_score"`
	RiskLevel      RiskLevel `json:"risk_level" db:"risk_level"`
	Trend          string    `json:"trend" db:"trend"`
	Recommendation string    `json:"recommendation" db:"recommendation"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}
