// Package anomaly detects per-week metric deviations from baselined
// feature rows and scores their severity.
package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

// Detector applies threshold and sample-size gates to feature rows and
// emits anomaly records. It is a pure function of (feature row, config):
// identical inputs always produce identical anomalies.
type Detector struct {
	cfg config.DetectorConfig
}

// NewDetector creates a detector with the given versioned config.
func NewDetector(cfg config.DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// metricExcess is one metric's normalized deviation beyond its threshold,
// clipped to [0,1]. Sub-threshold movement still contributes to the
// composite score so that severity grows smoothly instead of jumping at
// the trigger boundary.
type metricExcess struct {
	metric   string
	ratio    float64
	current  float64
	baseline float64
	excess   float64
}

func clip01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// spikeExcess normalizes an upward ratio against a >1 threshold.
func spikeExcess(ratio, threshold float64) float64 {
	return clip01((ratio - 1) / (threshold - 1))
}

// dropExcess normalizes a downward ratio against a <1 threshold.
func dropExcess(ratio, threshold float64) float64 {
	return clip01((1 - ratio) / (1 - threshold))
}

// ratioOf returns current/baseline when both sides are usable.
func ratioOf(w domain.MetricWindow) (cur, base, ratio float64, ok bool) {
	if w.Current == nil || w.Baseline == nil || *w.Baseline == 0 {
		return 0, 0, 0, false
	}
	return *w.Current, *w.Baseline, *w.Current / *w.Baseline, true
}

// Detect evaluates one feature row. Rows failing the sample-size gate or
// lacking a baseline produce no anomalies at all; that absence is the
// baseline guard, not an error.
func (d *Detector) Detect(f domain.AdWeeklyFeature, now time.Time) []domain.AdWeeklyAnomaly {
	if !f.MinResultsMet {
		return nil
	}

	var excesses []metricExcess

	cprCur, cprBase, cprRatio, cprOK := ratioOf(f.CPR)
	if cprOK {
		excesses = append(excesses, metricExcess{
			metric: "cpr", ratio: cprRatio, current: cprCur, baseline: cprBase,
			excess: spikeExcess(cprRatio, d.cfg.CPRSpikeThreshold),
		})
	}

	freqCur, freqBase, freqRatio, freqOK := ratioOf(f.Frequency)
	if freqOK {
		excesses = append(excesses, metricExcess{
			metric: "frequency", ratio: freqRatio, current: freqCur, baseline: freqBase,
			excess: spikeExcess(freqRatio, d.cfg.FreqHighThreshold),
		})
	}

	ctrCur, ctrBase, ctrRatio, ctrOK := ratioOf(f.CTR)
	if ctrOK {
		excesses = append(excesses, metricExcess{
			metric: "ctr", ratio: ctrRatio, current: ctrCur, baseline: ctrBase,
			excess: dropExcess(ctrRatio, d.cfg.CTRDropThreshold),
		})
	}

	// CPC is a cost metric like CPR; it shares the spike threshold. It
	// contributes to the composite score but has no anomaly type of its
	// own.
	cpcCur, cpcBase, cpcRatio, cpcOK := ratioOf(f.CPC)
	if cpcOK {
		excesses = append(excesses, metricExcess{
			metric: "cpc", ratio: cpcRatio, current: cpcCur, baseline: cpcBase,
			excess: spikeExcess(cpcRatio, d.cfg.CPRSpikeThreshold),
		})
	}

	if len(excesses) == 0 {
		return nil
	}

	score := d.compositeScore(excesses)
	confidence := d.confidence(f)
	triggers := likelyTriggers(excesses)

	base := domain.AdWeeklyAnomaly{
		AccountID:      f.AccountID,
		AdID:           f.AdID,
		WeekStart:      f.WeekStart,
		ResultFamily:   f.PrimaryFamily,
		Score:          score,
		Confidence:     confidence,
		LikelyTriggers: triggers,
		Status:         domain.AnomalyNew,
		ComputedAt:     now,
	}

	var out []domain.AdWeeklyAnomaly

	if cprOK && cprRatio >= d.cfg.CPRSpikeThreshold {
		a := base
		a.Type = domain.AnomalyCPRSpike
		a.CurrentValue = cprCur
		a.BaselineValue = cprBase
		a.DeltaPct = (cprRatio - 1) * 100
		out = append(out, a)
	}
	if ctrOK && ctrRatio <= d.cfg.CTRDropThreshold {
		a := base
		a.Type = domain.AnomalyCTRDrop
		a.CurrentValue = ctrCur
		a.BaselineValue = ctrBase
		a.DeltaPct = (ctrRatio - 1) * 100
		out = append(out, a)
	}
	if freqOK && freqRatio >= d.cfg.FreqHighThreshold {
		a := base
		a.Type = domain.AnomalyFreqHigh
		a.CurrentValue = freqCur
		a.BaselineValue = freqBase
		a.DeltaPct = (freqRatio - 1) * 100
		out = append(out, a)
	}

	return out
}

// compositeScore combines the per-metric excesses with the configured
// weights. Metrics without usable data are skipped and their weight is
// not redistributed: missing evidence lowers severity.
func (d *Detector) compositeScore(excesses []metricExcess) float64 {
	weights := map[string]float64{
		"cpr":       d.cfg.WeightCPR,
		"frequency": d.cfg.WeightFreq,
		"ctr":       d.cfg.WeightCTR,
		"cpc":       d.cfg.WeightCPC,
	}
	var score float64
	for _, e := range excesses {
		score += weights[e.metric] * e.excess
	}
	return clip01(score)
}

// confidence scales with history depth and this week's sample size:
// min(1, weeks_with_data/window) * min(1, results/(2*min_results)).
func (d *Detector) confidence(f domain.AdWeeklyFeature) float64 {
	histPart := math.Min(1, float64(f.WeeksWithData)/float64(d.cfg.BaselineWindowWeeks))

	var results float64
	if f.ResultCount.Current != nil {
		results = *f.ResultCount.Current
	}
	minResults := float64(d.cfg.MinResultsFor(string(f.PrimaryFamily)))
	samplePart := math.Min(1, results/(2*minResults))

	return histPart * samplePart
}

// likelyTriggers ranks metrics by normalized excess, truncated to the
// top 3. Ties break on metric name to keep output deterministic.
func likelyTriggers(excesses []metricExcess) []domain.LikelyTrigger {
	sorted := make([]metricExcess, len(excesses))
	copy(sorted, excesses)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].excess != sorted[j].excess {
			return sorted[i].excess > sorted[j].excess
		}
		return sorted[i].metric < sorted[j].metric
	})

	n := len(sorted)
	if n > 3 {
		n = 3
	}
	out := make([]domain.LikelyTrigger, 0, n)
	for _, e := range sorted[:n] {
		out = append(out, domain.LikelyTrigger{
			Metric:   e.metric,
			Current:  e.current,
			Baseline: e.baseline,
			DeltaPct: (e.ratio - 1) * 100,
			Excess:   e.excess,
		})
	}
	return out
}
