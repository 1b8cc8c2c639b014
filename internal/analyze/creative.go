package analyze

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/classify"
	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/feature"
)

// minSpendForConfidence is the spend at which the volume-confidence
// component of the risk score stops penalizing thin data.
const minSpendForConfidence = 50.0

// CreativeRisk aggregates result history by creative fingerprint and
// scores each fingerprint 0-100 against its target CPR. The score
// combines CPR deviation (0-40), short-vs-long trend (0-20), volume
// confidence (0-20), and a consistency bonus (-20-0).
func CreativeRisk(h *HistoryInput, cfg config.AnalyzerConfig, now time.Time) []domain.CreativeRiskStat {
	names := h.adNames()

	type agg struct {
		ads          map[string]bool
		spend        float64
		results      int64
		shortSpend   float64
		shortResults int64
		longSpend    float64
		longResults  int64
	}
	type fpKey struct {
		fp  string
		fam domain.ResultFamily
	}

	shortCut := h.PeriodEnd.AddDate(0, 0, -7*4)
	longCut := h.PeriodEnd.AddDate(0, 0, -7*8)

	byFP := make(map[fpKey]*agg)
	for _, r := range h.Results {
		name := names[r.AdID]
		fp := r.AdID
		if name != "" {
			fp = classify.Fingerprint(name)
		}

		k := fpKey{fp, r.ResultFamily}
		a, ok := byFP[k]
		if !ok {
			a = &agg{ads: make(map[string]bool)}
			byFP[k] = a
		}
		a.ads[r.AdID] = true
		a.spend += r.Spend
		a.results += r.ResultCount
		if r.WeekStart.After(shortCut) {
			a.shortSpend += r.Spend
			a.shortResults += r.ResultCount
		}
		if r.WeekStart.After(longCut) {
			a.longSpend += r.Spend
			a.longResults += r.ResultCount
		}
	}

	keys := make([]fpKey, 0, len(byFP))
	for k := range byFP {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].fam != keys[j].fam {
			return keys[i].fam < keys[j].fam
		}
		return keys[i].fp < keys[j].fp
	})

	// Fallback target: median aggregate CPR per family across fingerprints.
	famTargets := make(map[domain.ResultFamily]float64)
	{
		famCPRs := make(map[domain.ResultFamily][]float64)
		for k, a := range byFP {
			if a.results > 0 {
				famCPRs[k.fam] = append(famCPRs[k.fam], a.spend/float64(a.results))
			}
		}
		for fam, cprs := range famCPRs {
			if med, ok := feature.Median(cprs); ok {
				famTargets[fam] = med
			}
		}
	}

	out := make([]domain.CreativeRiskStat, 0, len(keys))
	for _, k := range keys {
		a := byFP[k]

		target := cfg.TargetCPR[string(k.fam)]
		if target == 0 {
			target = famTargets[k.fam]
		}
		if target == 0 {
			continue // nothing to score against
		}

		stat := domain.CreativeRiskStat{
			AccountID:    h.AccountID,
			Fingerprint:  k.fp,
			ResultFamily: k.fam,
			AdsCount:     len(a.ads),
			TotalSpend:   a.spend,
			TotalResults: a.results,
			ComputedAt:   now,
		}
		if a.results > 0 {
			v := a.spend / float64(a.results)
			stat.AggCPR = &v
		}
		if a.shortResults > 0 {
			v := a.shortSpend / float64(a.shortResults)
			stat.ShortCPR = &v
		}
		if a.longResults > 0 {
			v := a.longSpend / float64(a.longResults)
			stat.LongCPR = &v
		}

		stat.RiskScore, stat.RiskLevel = riskScore(stat.AggCPR, target, stat.ShortCPR, stat.LongCPR, a.spend)
		stat.Trend = trendLabel(stat.ShortCPR, stat.LongCPR)
		stat.Recommendation = recommendation(stat.RiskLevel, stat.Trend)

		out = append(out, stat)
	}
	return out
}

// riskScore computes the 0-100 risk score and its level.
func riskScore(aggCPR *float64, target float64, shortCPR, longCPR *float64, totalSpend float64) (int, domain.RiskLevel) {
	score := 0.0

	// CPR deviation component (0-40).
	if aggCPR != nil && *aggCPR > 0 {
		ratio := *aggCPR / target
		switch {
		case ratio <= 1.0:
			// at or under target
		case ratio <= 1.5:
			score += (ratio - 1.0) * 40
		case ratio <= 2.0:
			score += 20 + (ratio-1.5)*30
		default:
			score += math.Min(40, 35+(ratio-2.0)*10)
		}
	} else {
		// no results yet: moderate risk
		score += 25
	}

	// Trend component (0-20).
	if shortCPR != nil && longCPR != nil && *longCPR > 0 {
		trendPct := (*shortCPR - *longCPR) / *longCPR * 100
		switch {
		case trendPct <= -10:
			// improving
		case trendPct <= 0:
			score += 5
		case trendPct <= 20:
			score += 5 + trendPct*0.5
		default:
			score += 15 + math.Min(5, (trendPct-20)*0.25)
		}
	} else {
		score += 10
	}

	// Volume confidence component (0-20).
	switch {
	case totalSpend >= minSpendForConfidence*2:
	case totalSpend >= minSpendForConfidence:
		score += 10
	case totalSpend >= minSpendForConfidence*0.5:
		score += 15
	default:
		score += 20
	}

	// Consistency bonus (-20-0).
	if shortCPR != nil && longCPR != nil && *longCPR > 0 {
		variancePct := math.Abs(*shortCPR-*longCPR) / *longCPR * 100
		switch {
		case variancePct <= 10:
			score -= 20
		case variancePct <= 20:
			score -= 10
		case variancePct <= 30:
			score -= 5
		}
	}

	n := int(math.Round(math.Max(0, math.Min(100, score))))

	var level domain.RiskLevel
	switch {
	case n <= 25:
		level = domain.RiskLow
	case n <= 50:
		level = domain.RiskMedium
	case n <= 75:
		level = domain.RiskHigh
	default:
		level = domain.RiskCritical
	}
	return n, level
}

// trendLabel compares short-window CPR to long-window CPR at a +-10% band.
func trendLabel(shortCPR, longCPR *float64) string {
	if shortCPR == nil || longCPR == nil || *longCPR == 0 {
		return "stable"
	}
	changePct := (*shortCPR - *longCPR) / *longCPR * 100
	switch {
	case changePct <= -10:
		return "improving"
	case changePct >= 10:
		return "declining"
	default:
		return "stable"
	}
}

func recommendation(level domain.RiskLevel, trend string) string {
	switch level {
	case domain.RiskLow:
		if trend == "declining" {
			return "monitor"
		}
		return "scale"
	case domain.RiskMedium:
		return "monitor"
	case domain.RiskHigh:
		return "reduce"
	default:
		return "pause"
	}
}
