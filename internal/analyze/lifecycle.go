package analyze

import (
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/classify"
	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

// Lifecycle tracks each creative fingerprint from its first week with
// spend to its first anomaly ("death week"), and layers a fatigue signal
// from the latest feature rows on top.
func Lifecycle(h *HistoryInput, cfg config.AnalyzerConfig, now time.Time) []domain.CreativeLifecycleStat {
	names := h.adNames()

	fingerprintOf := func(adID string) string {
		name := names[adID]
		if name == "" {
			// No name known for the ad; the ad ID is the only stable handle.
			return adID
		}
		return classify.Fingerprint(name)
	}

	// First week with spend per fingerprint.
	firstWeek := make(map[string]time.Time)
	for _, in := range h.Insights {
		if in.Spend <= 0 {
			continue
		}
		fp := fingerprintOf(in.AdID)
		if cur, ok := firstWeek[fp]; !ok || in.WeekStart.Before(cur) {
			firstWeek[fp] = in.WeekStart
		}
	}

	// Earliest anomaly week per fingerprint.
	deathWeek := make(map[string]time.Time)
	for _, a := range h.Anomalies {
		fp := fingerprintOf(a.AdID)
		if cur, ok := deathWeek[fp]; !ok || a.WeekStart.Before(cur) {
			deathWeek[fp] = a.WeekStart
		}
	}

	// Fatigue from the most recent feature row per fingerprint.
	type fatigue struct {
		week time.Time
		fat  bool
		rec  string
	}
	latest := make(map[string]fatigue)
	for _, f := range h.Features {
		fp := fingerprintOf(f.AdID)
		cur, seen := latest[fp]
		if seen && !f.WeekStart.After(cur.week) {
			continue
		}
		fat, rec := fatigueSignal(f, cfg)
		latest[fp] = fatigue{week: f.WeekStart, fat: fat, rec: rec}
	}

	fps := make([]string, 0, len(firstWeek))
	for fp := range firstWeek {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	out := make([]domain.CreativeLifecycleStat, 0, len(fps))
	for _, fp := range fps {
		stat := domain.CreativeLifecycleStat{
			AccountID:   h.AccountID,
			Fingerprint: fp,
			FirstWeek:   firstWeek[fp],
			ComputedAt:  now,
		}
		if dw, ok := deathWeek[fp]; ok && !dw.Before(stat.FirstWeek) {
			d := dw
			stat.DeathWeek = &d
			weeks := int(dw.Sub(stat.FirstWeek).Hours() / (24 * 7))
			stat.LifetimeWeeks = &weeks
		}
		if f, ok := latest[fp]; ok {
			stat.Fatigued = f.fat
			stat.FatigueRecommendation = f.rec
		}
		out = append(out, stat)
	}
	return out
}

// fatigueSignal checks a feature row for audience fatigue: frequency
// above the threshold, or CTR decline past the configured drop. The
// recommendation escalates when either signal is half again past its
// threshold.
func fatigueSignal(f domain.AdWeeklyFeature, cfg config.AnalyzerConfig) (bool, string) {
	var freq float64
	if f.Frequency.Current != nil {
		freq = *f.Frequency.Current
	}
	var ctrDecline float64
	hasDecline := false
	if f.CTR.DeltaPct != nil {
		ctrDecline = *f.CTR.DeltaPct
		hasDecline = true
	}

	fatigued := freq > cfg.FatigueFrequency || (hasDecline && ctrDecline < cfg.FatigueCTRDecline)
	if !fatigued {
		return false, ""
	}

	rec := "replace"
	if freq > cfg.FatigueFrequency*1.5 || (hasDecline && ctrDecline < cfg.FatigueCTRDecline*1.5) {
		rec = "urgent_replace"
	}
	return true, rec
}
