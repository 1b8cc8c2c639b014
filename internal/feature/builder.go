// Package feature computes baselined feature rows from weekly result
// history: trailing-median baselines, lags, short-term slopes, and
// percentage deltas per metric.
package feature

import (
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

// WeekMetrics is the flattened metric set for one (ad, week) against the
// ad's primary result family. CPR is nil on zero-result weeks.
type WeekMetrics struct {
	Spend       float64
	Frequency   float64
	CTR         float64
	CPC         float64
	CPM         float64
	Reach       float64
	ResultCount int64
	CPR         *float64
}

// History is the ad's weekly metric history keyed by week start (UTC
// Monday midnight). Missing weeks are simply absent; they are never
// defaulted to zero.
type History map[time.Time]WeekMetrics

// Builder computes AdWeeklyFeature rows. All computation is a pure
// function of the history window and the detector config, so re-running
// over unchanged inputs is bit-identical except for ComputedAt.
type Builder struct {
	cfg config.DetectorConfig
}

// NewBuilder creates a feature builder with the given detector config.
func NewBuilder(cfg config.DetectorConfig) *Builder {
	return &Builder{cfg: cfg}
}

type metricAt func(WeekMetrics) (float64, bool)

func mSpend(w WeekMetrics) (float64, bool)     { return w.Spend, true }
func mFrequency(w WeekMetrics) (float64, bool) { return w.Frequency, true }
func mCTR(w WeekMetrics) (float64, bool)       { return w.CTR, true }
func mCPC(w WeekMetrics) (float64, bool)       { return w.CPC, true }
func mCPM(w WeekMetrics) (float64, bool)       { return w.CPM, true }
func mReach(w WeekMetrics) (float64, bool)     { return w.Reach, true }
func mResults(w WeekMetrics) (float64, bool)   { return float64(w.ResultCount), true }
func mCPR(w WeekMetrics) (float64, bool) {
	if w.CPR == nil {
		return 0, false
	}
	return *w.CPR, true
}

// Build computes the feature row for (ad, week). The baseline window is
// the trailing BaselineWindowWeeks strictly before week; lag1/lag2 are
// the raw values 1 and 2 weeks prior, nil when those weeks are missing.
func (b *Builder) Build(accountID, adID string, week time.Time, family domain.ResultFamily, hist History, now time.Time) domain.AdWeeklyFeature {
	cur, hasCur := hist[week]

	f := domain.AdWeeklyFeature{
		AccountID:     accountID,
		AdID:          adID,
		WeekStart:     week,
		PrimaryFamily: family,
		ComputedAt:    now,
	}

	// weeks_with_data counts baseline-window weeks that had any data.
	for i := 1; i <= b.cfg.BaselineWindowWeeks; i++ {
		if _, ok := hist[week.AddDate(0, 0, -7*i)]; ok {
			f.WeeksWithData++
		}
	}

	if hasCur {
		f.MinResultsMet = cur.ResultCount >= b.cfg.MinResultsFor(string(family))
	}

	f.Spend = b.window(week, hist, cur, hasCur, mSpend)
	f.Frequency = b.window(week, hist, cur, hasCur, mFrequency)
	f.CTR = b.window(week, hist, cur, hasCur, mCTR)
	f.CPC = b.window(week, hist, cur, hasCur, mCPC)
	f.CPM = b.window(week, hist, cur, hasCur, mCPM)
	f.Reach = b.window(week, hist, cur, hasCur, mReach)
	f.ResultCount = b.window(week, hist, cur, hasCur, mResults)
	f.CPR = b.window(week, hist, cur, hasCur, mCPR)

	f.FrequencySlope4w = b.slope4w(week, hist, mFrequency)
	f.CTRSlope4w = b.slope4w(week, hist, mCTR)

	// Reach growth and spend change versus the prior week.
	if prev, ok := hist[week.AddDate(0, 0, -7)]; ok && hasCur {
		if prev.Reach > 0 {
			f.ReachGrowthRate = ptr((cur.Reach - prev.Reach) / prev.Reach * 100)
		}
		if prev.Spend > 0 {
			f.SpendChangePct = ptr((cur.Spend - prev.Spend) / prev.Spend * 100)
		}
	}

	return f
}

// window assembles one metric's MetricWindow: current value, trailing
// median baseline, delta vs baseline, and the two lag values.
func (b *Builder) window(week time.Time, hist History, cur WeekMetrics, hasCur bool, at metricAt) domain.MetricWindow {
	var w domain.MetricWindow

	if hasCur {
		if v, ok := at(cur); ok {
			w.Current = ptr(v)
		}
	}

	var baselineVals []float64
	for i := 1; i <= b.cfg.BaselineWindowWeeks; i++ {
		row, ok := hist[week.AddDate(0, 0, -7*i)]
		if !ok {
			continue
		}
		if v, ok := at(row); ok {
			baselineVals = append(baselineVals, v)
		}
	}

	// The baseline guard: fewer than the minimum weeks of usable data
	// leaves baseline (and therefore delta) nil. This is the primary
	// defense against false positives on new or low-volume ads.
	if len(baselineVals) >= b.cfg.MinBaselineWeeks {
		if med, ok := Median(baselineVals); ok {
			w.Baseline = ptr(med)
			if w.Current != nil {
				if d, ok := pctDelta(*w.Current, med); ok {
					w.DeltaPct = ptr(d)
				}
			}
		}
	}

	if row, ok := hist[week.AddDate(0, 0, -7)]; ok {
		if v, ok := at(row); ok {
			w.Lag1 = ptr(v)
		}
	}
	if row, ok := hist[week.AddDate(0, 0, -14)]; ok {
		if v, ok := at(row); ok {
			w.Lag2 = ptr(v)
		}
	}

	return w
}

// slope4w computes the endpoint slope over the trailing 4 weeks inclusive
// of the current week.
func (b *Builder) slope4w(week time.Time, hist History, at metricAt) *float64 {
	var pts []point
	for i := 0; i < 4; i++ {
		row, ok := hist[week.AddDate(0, 0, -7*i)]
		if !ok {
			continue
		}
		if v, ok := at(row); ok {
			pts = append(pts, point{Week: -i, Value: v})
		}
	}
	if s, ok := twoPointSlope(pts); ok {
		return ptr(s)
	}
	return nil
}
