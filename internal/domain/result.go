package domain

import "time"

// ResultFamily is a normalized bucket that raw conversion action types
// roll up into. The set is closed; anything unmapped lands in FamilyOther.
type ResultFamily string

const (
	FamilyMessages    ResultFamily = "messages"
	FamilyLeadForm    ResultFamily = "lead_form"
	FamilyWebsiteLead ResultFamily = "website_lead"
	FamilyPurchase    ResultFamily = "purchase"
	FamilyClick       ResultFamily = "click"
	FamilyVideoView   ResultFamily = "video_view"
	FamilyAppInstall  ResultFamily = "app_install"
	FamilyOther       ResultFamily = "other"
)

// WeeklyResult is the classified rollup per (ad, week, result family).
// CPR is nil when ResultCount is zero: a zero-result week with spend is a
// tracking-health concern, never CPR = spend.
type WeeklyResult struct {
	AccountID    string       `json:"account_id" db:"account_id"`
	AdID         string       `json:"ad_id" db:"ad_id"`
	WeekStart    time.Time    `json:"week_start" db:"week_start"`
	ResultFamily ResultFamily `json:"result_family" db:"result_family"`

	ResultCount int64    `json:"result_count" db:"result_count"`
	Spend       float64  `json:"spend" db:"spend"`
	CPR         *float64 `json:"cpr" db:"cpr"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}
