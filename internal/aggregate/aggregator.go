// Package aggregate rolls raw weekly insight rows into classified
// per-family weekly results.
package aggregate

import (
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/classify"
	"github.com/ignite/adpulse/internal/domain"
)

// Aggregator turns WeeklyInsight rows into WeeklyResult rows using the
// static classification mapping.
type Aggregator struct {
	mapping *classify.Mapping
}

// New creates an Aggregator over the given mapping.
func New(mapping *classify.Mapping) *Aggregator {
	return &Aggregator{mapping: mapping}
}

// Aggregate produces one WeeklyResult per result family occurring in the
// insight's action list, plus a row for the primary family even when it
// had zero results. Spend is the ad week's full spend on every row (the
// platform does not attribute spend per conversion type). CPR is nil on
// zero-result rows: a zero-result week with non-zero spend must stay
// representable as "no results", never as CPR = spend.
func (a *Aggregator) Aggregate(in domain.WeeklyInsight, now time.Time) []domain.WeeklyResult {
	counts := a.mapping.FamilyCounts(in.Actions)
	primary := a.mapping.PrimaryFamily(in.OptimizationGoal, in.Actions)

	if _, ok := counts[primary]; !ok {
		counts[primary] = 0
	}

	families := make([]domain.ResultFamily, 0, len(counts))
	for fam := range counts {
		families = append(families, fam)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })

	out := make([]domain.WeeklyResult, 0, len(families))
	for _, fam := range families {
		count := counts[fam]
		r := domain.WeeklyResult{
			AccountID:    in.AccountID,
			AdID:         in.AdID,
			WeekStart:    in.WeekStart,
			ResultFamily: fam,
			ResultCount:  count,
			Spend:        in.Spend,
			ComputedAt:   now,
		}
		if count > 0 {
			cpr := in.Spend / float64(count)
			r.CPR = &cpr
		}
		out = append(out, r)
	}
	return out
}

// PrimaryFamily exposes the mapping's primary family pick for callers
// that need it without re-aggregating.
func (a *Aggregator) PrimaryFamily(in domain.WeeklyInsight) domain.ResultFamily {
	return a.mapping.PrimaryFamily(in.OptimizationGoal, in.Actions)
}
