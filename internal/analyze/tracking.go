package analyze

import (
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/feature"
)

// TrackingHealth separates measurement problems from performance
// problems: runs of weeks with link clicks but zero results point at
// broken conversion tracking, and abnormally volatile result counts
// point at an attribution issue. Both change the remediation (fix
// tracking, not the creative), so they are surfaced apart from the
// anomaly stream.
func TrackingHealth(h *HistoryInput, cfg config.AnalyzerConfig, now time.Time) []domain.TrackingHealthIssue {
	linkClicks := make(map[string]map[time.Time]int64)
	for _, in := range h.Insights {
		if linkClicks[in.AdID] == nil {
			linkClicks[in.AdID] = make(map[time.Time]int64)
		}
		linkClicks[in.AdID][in.WeekStart] = in.LinkClicks
	}

	// Group result rows by (ad, family), weeks ascending.
	type key struct {
		adID string
		fam  domain.ResultFamily
	}
	byAd := make(map[key][]domain.WeeklyResult)
	for _, r := range h.Results {
		k := key{r.AdID, r.ResultFamily}
		byAd[k] = append(byAd[k], r)
	}

	keys := make([]key, 0, len(byAd))
	for k := range byAd {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].adID != keys[j].adID {
			return keys[i].adID < keys[j].adID
		}
		return keys[i].fam < keys[j].fam
	})

	var out []domain.TrackingHealthIssue
	for _, k := range keys {
		rows := byAd[k]
		sort.Slice(rows, func(i, j int) bool { return rows[i].WeekStart.Before(rows[j].WeekStart) })

		out = append(out, brokenTrackingRuns(h.AccountID, k.adID, k.fam, rows, linkClicks[k.adID], cfg, now)...)

		if issue, ok := volatilityIssue(h.AccountID, k.adID, k.fam, rows, cfg, now); ok {
			out = append(out, issue)
		}
	}
	return out
}

// brokenTrackingRuns finds runs of >= BrokenTrackingMinWeeks consecutive
// weeks where the ad drew link clicks but recorded zero results.
func brokenTrackingRuns(accountID, adID string, fam domain.ResultFamily, rows []domain.WeeklyResult, clicks map[time.Time]int64, cfg config.AnalyzerConfig, now time.Time) []domain.TrackingHealthIssue {
	var out []domain.TrackingHealthIssue

	var run []domain.WeeklyResult
	var runClicks int64

	flush := func() {
		if len(run) >= cfg.BrokenTrackingMinWeeks {
			issue := domain.TrackingHealthIssue{
				AccountID:        accountID,
				AdID:             adID,
				ResultFamily:     fam,
				Kind:             domain.IssueBrokenTracking,
				WeekStart:        run[0].WeekStart,
				WeekEnd:          run[len(run)-1].WeekStart,
				ConsecutiveWeeks: len(run),
				LinkClicks:       runClicks,
				ComputedAt:       now,
			}
			for _, r := range run {
				issue.SpendAtRisk += r.Spend
			}
			out = append(out, issue)
		}
		run = nil
		runClicks = 0
	}

	for i, r := range rows {
		weekClicks := clicks[r.WeekStart]
		suspicious := r.ResultCount == 0 && weekClicks > 0

		consecutive := len(run) == 0 ||
			r.WeekStart.Equal(run[len(run)-1].WeekStart.AddDate(0, 0, 7))

		if suspicious && consecutive {
			run = append(run, r)
			runClicks += weekClicks
		} else {
			flush()
			if suspicious {
				run = []domain.WeeklyResult{r}
				runClicks = weekClicks
			}
		}
		if i == len(rows)-1 {
			flush()
		}
	}
	return out
}

// volatilityIssue flags result-count series whose coefficient of
// variation exceeds the configured threshold.
func volatilityIssue(accountID, adID string, fam domain.ResultFamily, rows []domain.WeeklyResult, cfg config.AnalyzerConfig, now time.Time) (domain.TrackingHealthIssue, bool) {
	counts := make([]float64, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, float64(r.ResultCount))
	}

	cv, ok := feature.CoefficientOfVariation(counts)
	if !ok || cv <= cfg.VolatilityCVThreshold {
		return domain.TrackingHealthIssue{}, false
	}

	return domain.TrackingHealthIssue{
		AccountID:        accountID,
		AdID:             adID,
		ResultFamily:     fam,
		Kind:             domain.IssueHighVolatility,
		WeekStart:        rows[0].WeekStart,
		WeekEnd:          rows[len(rows)-1].WeekStart,
		ConsecutiveWeeks: len(rows),
		VolatilityCV:     &cv,
		ComputedAt:       now,
	}, true
}
