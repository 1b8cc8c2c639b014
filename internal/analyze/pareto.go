package analyze

import (
	"fmt"
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/feature"
)

// Pareto ranks ads by spend within the period, measures how concentrated
// results are in the top spenders, sums zero-result spend, and flags
// budget eaters. One ParetoStat per result family with activity.
func Pareto(h *HistoryInput, cfg config.AnalyzerConfig, now time.Time) []domain.ParetoStat {
	adsets := h.adsetOf()

	var out []domain.ParetoStat
	for fam, rows := range h.resultsByFamily() {
		stat := paretoForFamily(h.AccountID, fam, rows, adsets, cfg, now)
		stat.PeriodStart = h.PeriodStart
		stat.PeriodEnd = h.PeriodEnd
		out = append(out, stat)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ResultFamily < out[j].ResultFamily })
	return out
}

type adTotals struct {
	adID    string
	spend   float64
	results int64
}

func paretoForFamily(accountID string, fam domain.ResultFamily, rows []domain.WeeklyResult, adsets map[string]string, cfg config.AnalyzerConfig, now time.Time) domain.ParetoStat {
	stat := domain.ParetoStat{
		AccountID:    accountID,
		ResultFamily: fam,
		ComputedAt:   now,
	}

	byAd := make(map[string]*adTotals)
	for _, r := range rows {
		t, ok := byAd[r.AdID]
		if !ok {
			t = &adTotals{adID: r.AdID}
			byAd[r.AdID] = t
		}
		t.spend += r.Spend
		t.results += r.ResultCount

		stat.TotalSpend += r.Spend
		stat.TotalResults += r.ResultCount
		if r.Spend > 0 && r.ResultCount == 0 {
			stat.ZeroResultSpend += r.Spend
			stat.ZeroResultWeeks++
		}
	}

	ads := make([]*adTotals, 0, len(byAd))
	for _, t := range byAd {
		ads = append(ads, t)
	}
	sort.Slice(ads, func(i, j int) bool {
		if ads[i].spend != ads[j].spend {
			return ads[i].spend > ads[j].spend
		}
		return ads[i].adID < ads[j].adID
	})

	// Share of results delivered by the top 10% of ads by spend
	// (at least one ad).
	if stat.TotalResults > 0 && len(ads) > 0 {
		topN := (len(ads) + 9) / 10
		var topResults int64
		for _, t := range ads[:topN] {
			topResults += t.results
		}
		stat.Top10PctResultShare = float64(topResults) / float64(stat.TotalResults) * 100
	}

	stat.Eaters = detectEaters(ads, adsets, cfg.TargetCPR[string(fam)])
	return stat
}

// detectEaters flags ads burning budget without proportional results.
// Priorities follow remediation urgency: CPR blown past 3x target,
// zero results at well above average spend, then majority-of-adset
// spenders running over 1.5x target.
func detectEaters(ads []*adTotals, adsets map[string]string, targetCPR float64) []domain.BudgetEater {
	if len(ads) == 0 {
		return nil
	}

	if targetCPR == 0 {
		// No configured target: fall back to the median observed CPR so
		// the analysis stays usable on unconfigured accounts.
		var cprs []float64
		for _, t := range ads {
			if t.results > 0 {
				cprs = append(cprs, t.spend/float64(t.results))
			}
		}
		med, ok := feature.Median(cprs)
		if !ok {
			return nil
		}
		targetCPR = med
	}

	var totalSpend float64
	adsetSpend := make(map[string]float64)
	for _, t := range ads {
		totalSpend += t.spend
		adsetSpend[adsets[t.adID]] += t.spend
	}
	avgSpend := totalSpend / float64(len(ads))

	var eaters []domain.BudgetEater
	for _, t := range ads {
		var cpr *float64
		if t.results > 0 {
			v := t.spend / float64(t.results)
			cpr = &v
		}

		sharePct := 0.0
		if as := adsetSpend[adsets[t.adID]]; as > 0 {
			sharePct = t.spend / as * 100
		}

		e := domain.BudgetEater{
			AdID:          t.adID,
			AdsetID:       adsets[t.adID],
			Spend:         t.spend,
			ResultCount:   t.results,
			CPR:           cpr,
			SpendSharePct: sharePct,
		}

		switch {
		case cpr != nil && *cpr > targetCPR*3:
			e.Priority = domain.EaterCritical
			e.Reason = fmt.Sprintf("CPR %.2f > 3x target %.2f", *cpr, targetCPR)
		case t.results == 0 && t.spend >= avgSpend*2:
			e.Priority = domain.EaterHigh
			e.Reason = fmt.Sprintf("0 results, spend %.2f >= 2x avg %.2f", t.spend, avgSpend)
		case cpr != nil && *cpr > targetCPR*1.5 && sharePct > 50:
			e.Priority = domain.EaterMedium
			e.Reason = fmt.Sprintf("CPR %.2f > 1.5x target, %.0f%% of adset spend", *cpr, sharePct)
		default:
			continue
		}
		eaters = append(eaters, e)
	}

	order := map[domain.EaterPriority]int{domain.EaterCritical: 0, domain.EaterHigh: 1, domain.EaterMedium: 2}
	sort.Slice(eaters, func(i, j int) bool {
		if order[eaters[i].Priority] != order[eaters[j].Priority] {
			return order[eaters[i].Priority] < order[eaters[j].Priority]
		}
		return eaters[i].AdID < eaters[j].AdID
	})
	return eaters
}
