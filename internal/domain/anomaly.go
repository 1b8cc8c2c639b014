package domain

import "time"

// AnomalyType identifies which metric deviation fired.
type AnomalyType string

const (
	AnomalyCPRSpike AnomalyType = "cpr_spike"
	AnomalyCTRDrop  AnomalyType = "ctr_drop"
	AnomalyFreqHigh AnomalyType = "freq_high"
)

// AnomalyStatus is the review lifecycle of an anomaly record. Only the
// reviewing collaborator moves it; the detector inserts `new` and never
// overwrites a human-set status except via an explicit re-open to `new`.
type AnomalyStatus string

const (
	AnomalyNew           AnomalyStatus = "new"
	AnomalyAcknowledged  AnomalyStatus = "acknowledged"
	AnomalyResolved      AnomalyStatus = "resolved"
	AnomalyFalsePositive AnomalyStatus = "false_positive"
)

// ValidAnomalyStatus reports whether s is a member of the status set.
func ValidAnomalyStatus(s AnomalyStatus) bool {
	switch s {
	case AnomalyNew, AnomalyAcknowledged, AnomalyResolved, AnomalyFalsePositive:
		return true
	}
	return false
}

// LikelyTrigger annotates one metric's contribution to an anomaly,
// ranked by normalized excess beyond its threshold.
type LikelyTrigger struct {
	Metric   string  `json:"metric"`
	Current  float64 `json:"current"`
	Baseline float64 `json:"baseline"`
	DeltaPct float64 `json:"delta_pct"`
	Excess   float64 `json:"excess"`
}

// AdWeeklyAnomaly is one detected deviation per
// (ad, week, result_family, anomaly_type).
type AdWeeklyAnomaly struct {
	ID           string       `json:"id" db:"id"`
	AccountID    string       `json:"account_id" db:"account_id"`
	AdID         string       `json:"ad_id" db:"ad_id"`
	WeekStart    time.Time    `json:"week_start" db:"week_start"`
	ResultFamily ResultFamily `json:"result_family" db:"result_family"`
	Type         AnomalyType  `json:"anomaly_type" db:"anomaly_type"`

	CurrentValue  float64 `json:"current_value" db:"current_value"`
	BaselineValue float64 `json:"baseline_value" db:"baseline_value"`
	DeltaPct      float64 `json:"delta_pct" db:"delta_pct"`
	Score         float64 `json:"anomaly_score" db:"anomaly_score"`
	Confidence    float64 `json:"confidence" db:"confidence"`

	LikelyTriggers []LikelyTrigger `json:"likely_triggers" db:"likely_triggers"`

	Status     AnomalyStatus `json:"status" db:"status"`
	ReviewNote string        `json:"review_note,omitempty" db:"review_note"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}
