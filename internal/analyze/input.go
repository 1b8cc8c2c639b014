package analyze

import (
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// HistoryInput is the read-replica snapshot an analyzer run works from.
// Slices are ordered (ad, week ascending) by the repository; analyzers
// must not mutate them.
type HistoryInput struct {
	AccountID   string
	PeriodStart time.Time
	PeriodEnd   time.Time

	Insights  []domain.WeeklyInsight
	Results   []domain.WeeklyResult
	Features  []domain.AdWeeklyFeature
	Anomalies []domain.AdWeeklyAnomaly
}

// resultsByFamily groups result rows within the period by family.
func (h *HistoryInput) resultsByFamily() map[domain.ResultFamily][]domain.WeeklyResult {
	out := make(map[domain.ResultFamily][]domain.WeeklyResult)
	for _, r := range h.Results {
		if r.WeekStart.Before(h.PeriodStart) || r.WeekStart.After(h.PeriodEnd) {
			continue
		}
		out[r.ResultFamily] = append(out[r.ResultFamily], r)
	}
	return out
}

// adsetOf maps ad IDs to their adset using the insight rows.
func (h *HistoryInput) adsetOf() map[string]string {
	out := make(map[string]string)
	for _, in := range h.Insights {
		if in.AdsetID != "" {
			out[in.AdID] = in.AdsetID
		}
	}
	return out
}

// adNames maps ad IDs to the last seen ad name.
func (h *HistoryInput) adNames() map[string]string {
	out := make(map[string]string)
	for _, in := range h.Insights {
		if in.AdName != "" {
			out[in.AdID] = in.AdName
		}
	}
	return out
}
