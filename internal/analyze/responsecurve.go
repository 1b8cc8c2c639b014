package analyze

import (
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

// ResponseCurve buckets (ad, week) result rows by spend range and
// computes marginal CPR per bucket. The bucket with the lowest marginal
// CPR is the sweet spot; buckets above it whose marginal CPR degrades
// past the saturation factor are marked saturated.
func ResponseCurve(h *HistoryInput, cfg config.AnalyzerConfig, now time.Time) []domain.ResponseCurveBucket {
	var out []domain.ResponseCurveBucket
	for fam, rows := range h.resultsByFamily() {
		out = append(out, curveForFamily(h, fam, rows, cfg, now)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResultFamily != out[j].ResultFamily {
			return out[i].ResultFamily < out[j].ResultFamily
		}
		return out[i].SpendLow < out[j].SpendLow
	})
	return out
}

func curveForFamily(h *HistoryInput, fam domain.ResultFamily, rows []domain.WeeklyResult, cfg config.AnalyzerConfig, now time.Time) []domain.ResponseCurveBucket {
	var spendMin, spendMax float64
	first := true
	for _, r := range rows {
		if r.Spend <= 0 {
			continue
		}
		if first || r.Spend < spendMin {
			spendMin = r.Spend
		}
		if first || r.Spend > spendMax {
			spendMax = r.Spend
		}
		first = false
	}
	if first || spendMax == spendMin {
		return nil
	}

	n := cfg.CurveBuckets
	width := (spendMax - spendMin) / float64(n)

	buckets := make([]domain.ResponseCurveBucket, n)
	for i := range buckets {
		buckets[i] = domain.ResponseCurveBucket{
			AccountID:    h.AccountID,
			ResultFamily: fam,
			PeriodStart:  h.PeriodStart,
			SpendLow:     spendMin + float64(i)*width,
			SpendHigh:    spendMin + float64(i+1)*width,
			ComputedAt:   now,
		}
	}

	for _, r := range rows {
		if r.Spend <= 0 {
			continue
		}
		i := int((r.Spend - spendMin) / width)
		if i >= n {
			i = n - 1 // max spend lands in the last bucket
		}
		buckets[i].Weeks++
		buckets[i].TotalSpend += r.Spend
		buckets[i].Results += r.ResultCount
	}

	sweet := -1
	for i := range buckets {
		if buckets[i].Results > 0 {
			cpr := buckets[i].TotalSpend / float64(buckets[i].Results)
			buckets[i].MarginalCPR = &cpr
			if sweet < 0 || cpr < *buckets[sweet].MarginalCPR {
				sweet = i
			}
		}
	}
	if sweet < 0 {
		return buckets
	}

	buckets[sweet].SweetSpot = true
	sweetCPR := *buckets[sweet].MarginalCPR
	for i := sweet + 1; i < n; i++ {
		if buckets[i].MarginalCPR != nil && *buckets[i].MarginalCPR >= sweetCPR*cfg.SaturationFactor {
			buckets[i].Saturated = true
		}
	}
	return buckets
}
