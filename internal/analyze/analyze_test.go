package analyze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

var testNow = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

func week(n int) time.Time {
	// week(0) = Monday 2025-03-24; week(11) = Monday 2025-06-09
	return time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*n)
}

func fptr(v float64) *float64 { return &v }

func resultRow(adID string, w int, fam domain.ResultFamily, spend float64, count int64) domain.WeeklyResult {
	r := domain.WeeklyResult{
		AccountID:    "act_1",
		AdID:         adID,
		WeekStart:    week(w),
		ResultFamily: fam,
		Spend:        spend,
		ResultCount:  count,
	}
	if count > 0 {
		cpr := spend / float64(count)
		r.CPR = &cpr
	}
	return r
}

func insightRow(adID, adsetID, name string, w int, spend float64, linkClicks int64) domain.WeeklyInsight {
	return domain.WeeklyInsight{
		AccountID:  "act_1",
		CampaignID: "camp_1",
		AdsetID:    adsetID,
		AdID:       adID,
		AdName:     name,
		WeekStart:  week(w),
		Spend:      spend,
		LinkClicks: linkClicks,
	}
}

func historyInput() *HistoryInput {
	return &HistoryInput{
		AccountID:   "act_1",
		PeriodStart: week(0),
		PeriodEnd:   week(11),
	}
}

func TestPareto_ConcentrationAndZeroResultSpend(t *testing.T) {
	h := historyInput()
	// 10 ads; the top spender delivers most results.
	for i := 0; i < 10; i++ {
		adID := string(rune('a'+i)) + "_ad"
		if i == 0 {
			h.Results = append(h.Results, resultRow(adID, 1, domain.FamilyMessages, 100, 80))
		} else {
			h.Results = append(h.Results, resultRow(adID, 1, domain.FamilyMessages, 10, 2))
		}
	}
	// A zero-result week with spend.
	h.Results = append(h.Results, resultRow("z_ad", 2, domain.FamilyMessages, 25, 0))

	stats := Pareto(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, domain.FamilyMessages, s.ResultFamily)
	assert.Equal(t, int64(98), s.TotalResults)
	assert.InDelta(t, 215.0, s.TotalSpend, 1e-9)
	assert.Equal(t, 25.0, s.ZeroResultSpend)
	assert.Equal(t, 1, s.ZeroResultWeeks)
	// 11 ads, top 10% rounds up to 2: the 100-spend ad plus the 25-spend
	// zero-result ad, so 80 of 98 results.
	assert.InDelta(t, float64(80)/98*100, s.Top10PctResultShare, 1e-9)
}

func TestPareto_BudgetEaterPriorities(t *testing.T) {
	cfg := config.DefaultAnalyzerConfig()
	cfg.TargetCPR = map[string]float64{"messages": 10}

	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("critical_ad", "as_1", "Critical", 1, 100, 0),
		insightRow("dead_ad", "as_1", "Dead", 1, 100, 0),
		insightRow("share_ad", "as_2", "Share", 1, 100, 0),
		insightRow("fine_ad", "as_2", "Fine", 1, 100, 0),
	}
	h.Results = []domain.WeeklyResult{
		resultRow("critical_ad", 1, domain.FamilyMessages, 350, 10), // CPR 35 > 3x target
		resultRow("dead_ad", 1, domain.FamilyMessages, 450, 0),      // 0 results, spend >= 2x avg
		resultRow("share_ad", 1, domain.FamilyMessages, 80, 5),      // CPR 16 > 1.5x target, 89% of adset
		resultRow("fine_ad", 1, domain.FamilyMessages, 10, 5),       // CPR 2
	}

	stats := Pareto(h, cfg, testNow)
	require.Len(t, stats, 1)
	eaters := stats[0].Eaters
	require.Len(t, eaters, 3)

	assert.Equal(t, "critical_ad", eaters[0].AdID)
	assert.Equal(t, domain.EaterCritical, eaters[0].Priority)
	assert.Equal(t, "dead_ad", eaters[1].AdID)
	assert.Equal(t, domain.EaterHigh, eaters[1].Priority)
	assert.Nil(t, eaters[1].CPR)
	assert.Equal(t, "share_ad", eaters[2].AdID)
	assert.Equal(t, domain.EaterMedium, eaters[2].Priority)
	assert.Greater(t, eaters[2].SpendSharePct, 50.0)
}

func TestPareto_MedianFallbackTarget(t *testing.T) {
	// No configured target. Median CPR is 10; an ad at CPR 40 still gets
	// flagged critical against the fallback.
	h := historyInput()
	h.Results = []domain.WeeklyResult{
		resultRow("a", 1, domain.FamilyLeadForm, 100, 10),
		resultRow("b", 1, domain.FamilyLeadForm, 50, 5),
		resultRow("c", 1, domain.FamilyLeadForm, 400, 10),
	}

	stats := Pareto(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, stats, 1)
	require.Len(t, stats[0].Eaters, 1)
	assert.Equal(t, "c", stats[0].Eaters[0].AdID)
	assert.Equal(t, domain.EaterCritical, stats[0].Eaters[0].Priority)
}

func TestLifecycle_FirstAndDeathWeek(t *testing.T) {
	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "Summer Promo - Video A", 2, 50, 0),
		insightRow("ad1", "as_1", "Summer Promo - Video A", 3, 60, 0),
		insightRow("ad2", "as_1", "Evergreen - Carousel", 0, 40, 0),
	}
	h.Anomalies = []domain.AdWeeklyAnomaly{
		{AccountID: "act_1", AdID: "ad1", WeekStart: week(5), ResultFamily: domain.FamilyMessages, Type: domain.AnomalyCPRSpike},
	}

	stats := Lifecycle(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, stats, 2)

	// Sorted by fingerprint: "carousel" before "video a".
	ev := stats[0]
	assert.Equal(t, "carousel", ev.Fingerprint)
	assert.Equal(t, week(0), ev.FirstWeek)
	assert.Nil(t, ev.DeathWeek)
	assert.Nil(t, ev.LifetimeWeeks)

	sp := stats[1]
	assert.Equal(t, "video a", sp.Fingerprint)
	assert.Equal(t, week(2), sp.FirstWeek)
	require.NotNil(t, sp.DeathWeek)
	assert.Equal(t, week(5), *sp.DeathWeek)
	require.NotNil(t, sp.LifetimeWeeks)
	assert.Equal(t, 3, *sp.LifetimeWeeks)
}

func TestLifecycle_FatigueFromLatestFeatures(t *testing.T) {
	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "Promo - V1", 1, 50, 0),
	}
	h.Features = []domain.AdWeeklyFeature{
		{AdID: "ad1", WeekStart: week(3), Frequency: domain.MetricWindow{Current: fptr(2.0)}},
		// Latest week: frequency past 1.5x the 3.0 threshold.
		{AdID: "ad1", WeekStart: week(4), Frequency: domain.MetricWindow{Current: fptr(4.8)}},
	}

	stats := Lifecycle(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, stats, 1)
	assert.True(t, stats[0].Fatigued)
	assert.Equal(t, "urgent_replace", stats[0].FatigueRecommendation)
}

func TestLifecycle_CTRDeclineFatigue(t *testing.T) {
	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "Promo - V1", 1, 50, 0),
	}
	h.Features = []domain.AdWeeklyFeature{
		{AdID: "ad1", WeekStart: week(4), CTR: domain.MetricWindow{DeltaPct: fptr(-25.0)}},
	}

	stats := Lifecycle(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, stats, 1)
	assert.True(t, stats[0].Fatigued)
	assert.Equal(t, "replace", stats[0].FatigueRecommendation)
}

func TestResponseCurve_SweetSpotAndSaturation(t *testing.T) {
	h := historyInput()
	// Efficiency improves up to mid spend then collapses at the top end.
	h.Results = []domain.WeeklyResult{
		resultRow("a", 1, domain.FamilyMessages, 10, 1),  // CPR 10
		resultRow("a", 2, domain.FamilyMessages, 50, 10), // CPR 5
		resultRow("a", 3, domain.FamilyMessages, 110, 5), // CPR 22
	}

	buckets := ResponseCurve(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, buckets, 5)

	// width = (110-10)/5 = 20: rows land in buckets 0, 2, 4.
	assert.Equal(t, 1, buckets[0].Weeks)
	require.NotNil(t, buckets[0].MarginalCPR)
	assert.InDelta(t, 10.0, *buckets[0].MarginalCPR, 1e-9)
	assert.False(t, buckets[0].SweetSpot)

	require.NotNil(t, buckets[2].MarginalCPR)
	assert.InDelta(t, 5.0, *buckets[2].MarginalCPR, 1e-9)
	assert.True(t, buckets[2].SweetSpot)

	require.NotNil(t, buckets[4].MarginalCPR)
	assert.InDelta(t, 22.0, *buckets[4].MarginalCPR, 1e-9)
	assert.True(t, buckets[4].Saturated)

	// Empty buckets carry no CPR and no flags.
	assert.Nil(t, buckets[1].MarginalCPR)
	assert.False(t, buckets[1].Saturated)
}

func TestResponseCurve_NoSpreadNoCurve(t *testing.T) {
	h := historyInput()
	h.Results = []domain.WeeklyResult{
		resultRow("a", 1, domain.FamilyMessages, 50, 5),
		resultRow("a", 2, domain.FamilyMessages, 50, 4),
	}

	buckets := ResponseCurve(h, config.DefaultAnalyzerConfig(), testNow)
	assert.Empty(t, buckets)
}

func TestTrackingHealth_BrokenTrackingRun(t *testing.T) {
	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "A", 1, 30, 40),
		insightRow("ad1", "as_1", "A", 2, 35, 55),
		insightRow("ad1", "as_1", "A", 3, 20, 10),
	}
	h.Results = []domain.WeeklyResult{
		resultRow("ad1", 1, domain.FamilyWebsiteLead, 30, 0),
		resultRow("ad1", 2, domain.FamilyWebsiteLead, 35, 0),
		resultRow("ad1", 3, domain.FamilyWebsiteLead, 20, 4),
	}

	issues := TrackingHealth(h, config.DefaultAnalyzerConfig(), testNow)
	// The same series also trips the volatility check (counts 0, 0, 4).
	require.Len(t, issues, 2)

	is := issues[0]
	assert.Equal(t, domain.IssueBrokenTracking, is.Kind)
	assert.Equal(t, "ad1", is.AdID)
	assert.Equal(t, 2, is.ConsecutiveWeeks)
	assert.Equal(t, week(1), is.WeekStart)
	assert.Equal(t, week(2), is.WeekEnd)
	assert.Equal(t, int64(95), is.LinkClicks)
	assert.InDelta(t, 65.0, is.SpendAtRisk, 1e-9)

	assert.Equal(t, domain.IssueHighVolatility, issues[1].Kind)
}

func TestTrackingHealth_SingleWeekNotFlagged(t *testing.T) {
	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "A", 1, 30, 40),
	}
	h.Results = []domain.WeeklyResult{
		resultRow("ad1", 1, domain.FamilyWebsiteLead, 30, 0),
	}

	issues := TrackingHealth(h, config.DefaultAnalyzerConfig(), testNow)
	assert.Empty(t, issues)
}

func TestTrackingHealth_GapBreaksRun(t *testing.T) {
	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "A", 1, 30, 40),
		insightRow("ad1", "as_1", "A", 4, 30, 40),
	}
	h.Results = []domain.WeeklyResult{
		resultRow("ad1", 1, domain.FamilyWebsiteLead, 30, 0),
		resultRow("ad1", 4, domain.FamilyWebsiteLead, 30, 0),
	}

	issues := TrackingHealth(h, config.DefaultAnalyzerConfig(), testNow)
	assert.Empty(t, issues)
}

func TestTrackingHealth_Volatility(t *testing.T) {
	h := historyInput()
	// One spike week then nothing: CV well above 1.0.
	counts := []int64{100, 0, 0, 0, 0, 0}
	for i, c := range counts {
		h.Results = append(h.Results, resultRow("ad1", i, domain.FamilyMessages, 50, c))
	}

	issues := TrackingHealth(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, issues, 1)
	is := issues[0]
	assert.Equal(t, domain.IssueHighVolatility, is.Kind)
	require.NotNil(t, is.VolatilityCV)
	assert.Greater(t, *is.VolatilityCV, 1.0)
	assert.Equal(t, 6, is.ConsecutiveWeeks)
}

func TestLagDependencies_SpikeRateAndBins(t *testing.T) {
	det := config.DefaultDetectorConfig()
	cfg := config.DefaultAnalyzerConfig()

	h := historyInput()
	// Frequency jumps +30% in week 1; CPR spikes +40% in week 2 and is
	// flat in week 3. Only the frequency delta is populated.
	h.Features = []domain.AdWeeklyFeature{
		{
			AdID: "ad1", WeekStart: week(1), PrimaryFamily: domain.FamilyMessages,
			Frequency: domain.MetricWindow{DeltaPct: fptr(30.0)},
		},
		{
			AdID: "ad1", WeekStart: week(2), PrimaryFamily: domain.FamilyMessages,
			CPR: domain.MetricWindow{DeltaPct: fptr(40.0)},
		},
		{
			AdID: "ad1", WeekStart: week(3), PrimaryFamily: domain.FamilyMessages,
			CPR: domain.MetricWindow{DeltaPct: fptr(1.0)},
		},
	}

	stats := LagDependencies(h, det, cfg, testNow)
	require.Len(t, stats, 2)

	// Lag 1: spike followed. +30% falls in the [20, 50) bin.
	lag1 := stats[0]
	assert.Equal(t, "frequency", lag1.Metric)
	assert.Equal(t, 1, lag1.Lag)
	assert.Equal(t, 20.0, lag1.BinLow)
	assert.Equal(t, 50.0, lag1.BinHigh)
	assert.Equal(t, 1, lag1.Samples)
	assert.InDelta(t, 1.0, lag1.SpikeRate, 1e-9)
	require.NotNil(t, lag1.MedianCPRDelta)
	assert.InDelta(t, 40.0, *lag1.MedianCPRDelta, 1e-9)

	// Lag 2: no spike.
	lag2 := stats[1]
	assert.Equal(t, 2, lag2.Lag)
	assert.InDelta(t, 0.0, lag2.SpikeRate, 1e-9)
	assert.Nil(t, lag2.MedianCPRDelta)
}

func TestLagDependencies_NoFutureNoSample(t *testing.T) {
	h := historyInput()
	h.Features = []domain.AdWeeklyFeature{
		{
			AdID: "ad1", WeekStart: week(1), PrimaryFamily: domain.FamilyMessages,
			Frequency: domain.MetricWindow{DeltaPct: fptr(30.0)},
		},
	}

	stats := LagDependencies(h, config.DefaultDetectorConfig(), config.DefaultAnalyzerConfig(), testNow)
	assert.Empty(t, stats)
}

func TestBinIndex(t *testing.T) {
	edges := []float64{-50, -20, 0, 20, 50, 100}

	assert.Equal(t, 0, binIndex(-80, edges))
	assert.Equal(t, 1, binIndex(-50, edges))
	assert.Equal(t, 3, binIndex(0, edges))
	assert.Equal(t, 5, binIndex(60, edges))
	assert.Equal(t, 6, binIndex(150, edges))

	low, high := binRange(0, edges)
	assert.Equal(t, -50.0, high)
	assert.Less(t, low, -1e17)

	low, high = binRange(6, edges)
	assert.Equal(t, 100.0, low)
	assert.Greater(t, high, 1e17)
}

func TestCreativeRisk_HealthyCreativeScoresLow(t *testing.T) {
	cfg := config.DefaultAnalyzerConfig()
	cfg.TargetCPR = map[string]float64{"messages": 10}

	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "Promo - V1", 0, 0, 0),
	}
	// Steady CPR 8, well under the 10 target, plenty of spend.
	for w := 4; w < 12; w++ {
		h.Results = append(h.Results, resultRow("ad1", w, domain.FamilyMessages, 80, 10))
	}

	stats := CreativeRisk(h, cfg, testNow)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, "v1", s.Fingerprint)
	assert.Equal(t, 1, s.AdsCount)
	require.NotNil(t, s.AggCPR)
	assert.InDelta(t, 8.0, *s.AggCPR, 1e-9)
	assert.Equal(t, domain.RiskLow, s.RiskLevel)
	assert.Equal(t, "stable", s.Trend)
	assert.Equal(t, "scale", s.Recommendation)
}

func TestCreativeRisk_BlownTargetScoresCritical(t *testing.T) {
	cfg := config.DefaultAnalyzerConfig()
	cfg.TargetCPR = map[string]float64{"messages": 10}

	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "Promo - V2", 0, 0, 0),
	}
	// CPR far past target for two months, and worsening: the recent four
	// weeks run at 45 against a 35 lifetime average.
	h.Results = []domain.WeeklyResult{
		resultRow("ad1", 4, domain.FamilyMessages, 25, 1),
		resultRow("ad1", 5, domain.FamilyMessages, 25, 1),
		resultRow("ad1", 6, domain.FamilyMessages, 25, 1),
		resultRow("ad1", 7, domain.FamilyMessages, 25, 1),
		resultRow("ad1", 8, domain.FamilyMessages, 45, 1),
		resultRow("ad1", 9, domain.FamilyMessages, 45, 1),
		resultRow("ad1", 10, domain.FamilyMessages, 45, 1),
		resultRow("ad1", 11, domain.FamilyMessages, 45, 1),
	}

	stats := CreativeRisk(h, cfg, testNow)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.GreaterOrEqual(t, s.RiskScore, 51)
	assert.Contains(t, []domain.RiskLevel{domain.RiskHigh, domain.RiskCritical}, s.RiskLevel)
	assert.Equal(t, "declining", s.Trend)
	assert.Contains(t, []string{"reduce", "pause"}, s.Recommendation)
}

func TestCreativeRisk_DecliningTrend(t *testing.T) {
	cfg := config.DefaultAnalyzerConfig()
	cfg.TargetCPR = map[string]float64{"messages": 10}

	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "Promo - V3", 0, 0, 0),
	}
	// Long window CPR ~10; the short window runs at 15.
	for w := 4; w < 8; w++ {
		h.Results = append(h.Results, resultRow("ad1", w, domain.FamilyMessages, 50, 10))
	}
	for w := 8; w < 12; w++ {
		h.Results = append(h.Results, resultRow("ad1", w, domain.FamilyMessages, 150, 10))
	}

	stats := CreativeRisk(h, cfg, testNow)
	require.Len(t, stats, 1)
	assert.Equal(t, "declining", stats[0].Trend)
}

func TestCreativeRisk_NoTargetUsesFamilyMedian(t *testing.T) {
	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "A - V1", 0, 0, 0),
		insightRow("ad2", "as_1", "B - V2", 0, 0, 0),
		insightRow("ad3", "as_1", "C - V3", 0, 0, 0),
	}
	h.Results = []domain.WeeklyResult{
		resultRow("ad1", 10, domain.FamilyLeadForm, 100, 10), // CPR 10
		resultRow("ad2", 10, domain.FamilyLeadForm, 120, 10), // CPR 12
		resultRow("ad3", 10, domain.FamilyLeadForm, 500, 10), // CPR 50
	}

	stats := CreativeRisk(h, config.DefaultAnalyzerConfig(), testNow)
	require.Len(t, stats, 3)

	byFP := make(map[string]domain.CreativeRiskStat)
	for _, s := range stats {
		byFP[s.Fingerprint] = s
	}
	// Median target is 12: v3 at CPR 50 scores far above v1 at CPR 10.
	assert.Greater(t, byFP["v3"].RiskScore, byFP["v1"].RiskScore)
}

func TestCreativeRisk_Deterministic(t *testing.T) {
	cfg := config.DefaultAnalyzerConfig()
	cfg.TargetCPR = map[string]float64{"messages": 10, "lead_form": 20}

	h := historyInput()
	h.Insights = []domain.WeeklyInsight{
		insightRow("ad1", "as_1", "A - V1", 0, 0, 0),
		insightRow("ad2", "as_1", "B - V2", 0, 0, 0),
	}
	h.Results = []domain.WeeklyResult{
		resultRow("ad1", 10, domain.FamilyMessages, 100, 10),
		resultRow("ad2", 10, domain.FamilyLeadForm, 100, 10),
		resultRow("ad2", 11, domain.FamilyMessages, 40, 2),
	}

	a := CreativeRisk(h, cfg, testNow)
	b := CreativeRisk(h, cfg, testNow)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Fingerprint, b[i].Fingerprint)
		assert.Equal(t, a[i].ResultFamily, b[i].ResultFamily)
		assert.Equal(t, a[i].RiskScore, b[i].RiskScore)
	}
}
