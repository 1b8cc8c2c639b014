package analyze

import (
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/feature"
)

// lagMetrics are the leading indicators the learner bins. CPR itself is
// the outcome, never a predictor here.
var lagMetrics = []string{"frequency", "ctr", "cpc", "spend"}

// LagDependencies learns, from historical weekly deltas, how predictive a
// metric's movement is of CPR degradation 1-2 weeks later. Output is a
// small lookup table per (metric, lag, delta bin): how often a CPR spike
// followed, and the median CPR delta when it did. It emits calibration
// data only, never anomalies.
func LagDependencies(h *HistoryInput, det config.DetectorConfig, cfg config.AnalyzerConfig, now time.Time) []domain.LagDependencyStat {
	// Index features by (ad, week) for lookahead.
	type key struct {
		adID string
		week time.Time
	}
	byWeek := make(map[key]domain.AdWeeklyFeature, len(h.Features))
	for _, f := range h.Features {
		byWeek[key{f.AdID, f.WeekStart}] = f
	}

	spikeCutPct := (det.CPRSpikeThreshold - 1) * 100

	type obs struct {
		spiked   bool
		cprDelta float64
	}
	type binKey struct {
		fam    domain.ResultFamily
		metric string
		lag    int
		bin    int
	}
	bins := make(map[binKey][]obs)

	for _, f := range h.Features {
		for _, metric := range lagMetrics {
			delta := metricDelta(f, metric)
			if delta == nil {
				continue
			}
			bin := binIndex(*delta, cfg.LagBinEdges)

			for lag := 1; lag <= 2; lag++ {
				future, ok := byWeek[key{f.AdID, f.WeekStart.AddDate(0, 0, 7*lag)}]
				if !ok || future.CPR.DeltaPct == nil {
					continue
				}
				fd := *future.CPR.DeltaPct
				bins[binKey{f.PrimaryFamily, metric, lag, bin}] = append(
					bins[binKey{f.PrimaryFamily, metric, lag, bin}],
					obs{spiked: fd >= spikeCutPct, cprDelta: fd},
				)
			}
		}
	}

	keys := make([]binKey, 0, len(bins))
	for k := range bins {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.fam != b.fam {
			return a.fam < b.fam
		}
		if a.metric != b.metric {
			return a.metric < b.metric
		}
		if a.lag != b.lag {
			return a.lag < b.lag
		}
		return a.bin < b.bin
	})

	out := make([]domain.LagDependencyStat, 0, len(keys))
	for _, k := range keys {
		observations := bins[k]

		var spikes int
		var spikeDeltas []float64
		for _, o := range observations {
			if o.spiked {
				spikes++
				spikeDeltas = append(spikeDeltas, o.cprDelta)
			}
		}

		low, high := binRange(k.bin, cfg.LagBinEdges)
		stat := domain.LagDependencyStat{
			AccountID:    h.AccountID,
			ResultFamily: k.fam,
			Metric:       k.metric,
			Lag:          k.lag,
			BinLow:       low,
			BinHigh:      high,
			Samples:      len(observations),
			SpikeRate:    float64(spikes) / float64(len(observations)),
			ComputedAt:   now,
		}
		if med, ok := feature.Median(spikeDeltas); ok {
			stat.MedianCPRDelta = &med
		}
		out = append(out, stat)
	}
	return out
}

func metricDelta(f domain.AdWeeklyFeature, metric string) *float64 {
	switch metric {
	case "frequency":
		return f.Frequency.DeltaPct
	case "ctr":
		return f.CTR.DeltaPct
	case "cpc":
		return f.CPC.DeltaPct
	case "spend":
		return f.Spend.DeltaPct
	}
	return nil
}

// binIndex places a delta into edges-defined bins: bin 0 is below the
// first edge, bin i covers [edge[i-1], edge[i]), the last bin is
// everything at or above the final edge.
func binIndex(delta float64, edges []float64) int {
	for i, e := range edges {
		if delta < e {
			return i
		}
	}
	return len(edges)
}

func binRange(bin int, edges []float64) (float64, float64) {
	const inf = 1e18
	if bin == 0 {
		return -inf, edges[0]
	}
	if bin >= len(edges) {
		return edges[len(edges)-1], inf
	}
	return edges[bin-1], edges[bin]
}
