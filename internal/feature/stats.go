package feature

import (
	"math"
	"sort"
)

// Median returns the median of vs, or false when vs is empty.
func Median(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// point is one (week offset, value) observation for slope computation.
type point struct {
	Week  int
	Value float64
}

// twoPointSlope computes the endpoint slope over the given observations:
// (newest - oldest) / weeks between them. Returns false with fewer than
// two observations or when the endpoints share a week.
//
// Endpoint slope was chosen over OLS: it matches the period-delta style
// of the rest of the scoring and keeps reproducibility trivial.
func twoPointSlope(pts []point) (float64, bool) {
	if len(pts) < 2 {
		return 0, false
	}
	oldest, newest := pts[0], pts[0]
	for _, p := range pts[1:] {
		if p.Week < oldest.Week {
			oldest = p
		}
		if p.Week > newest.Week {
			newest = p
		}
	}
	if newest.Week == oldest.Week {
		return 0, false
	}
	return (newest.Value - oldest.Value) / float64(newest.Week-oldest.Week), true
}

// pctDelta returns (current-baseline)/baseline*100, or false when the
// baseline is zero.
func pctDelta(current, baseline float64) (float64, bool) {
	if baseline == 0 {
		return 0, false
	}
	return (current - baseline) / baseline * 100, true
}

// CoefficientOfVariation returns stddev/mean for vs, or false when vs has
// fewer than two values or a zero mean. Used by the tracking-health
// analyzer to spot result-count volatility.
func CoefficientOfVariation(vs []float64) (float64, bool) {
	if len(vs) < 2 {
		return 0, false
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))
	if mean == 0 {
		return 0, false
	}

	var ss float64
	for _, v := range vs {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss/float64(len(vs))) / mean, true
}

func ptr(v float64) *float64 { return &v }
