package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpulse/internal/aggregate"
	"github.com/ignite/adpulse/internal/analyze"
	"github.com/ignite/adpulse/internal/anomaly"
	"github.com/ignite/adpulse/internal/classify"
	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/feature"
	"github.com/ignite/adpulse/internal/pkg/distlock"
	"github.com/ignite/adpulse/internal/service/insight"
)

// PipelineStore is the persistence the pipeline runner needs. Satisfied
// by repository/postgres.Repo.
type PipelineStore interface {
	Mappings(ctx context.Context) (*domain.MappingTables, error)

	InsightsWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.WeeklyInsight, error)
	ResultsWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.WeeklyResult, error)
	FeaturesWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.AdWeeklyFeature, error)
	AnomaliesWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.AdWeeklyAnomaly, error)

	ReplaceWeekResults(ctx context.Context, accountID string, week time.Time, rows []domain.WeeklyResult) error
	UpsertFeatures(ctx context.Context, rows []domain.AdWeeklyFeature) error
	UpsertAnomalies(ctx context.Context, rows []domain.AdWeeklyAnomaly) error

	SetJobCursor(ctx context.Context, id string, cursor time.Time, sum domain.ResultSummary) error

	SavePareto(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.ParetoStat, now time.Time) error
	SaveLifecycle(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.CreativeLifecycleStat, now time.Time) error
	SaveResponseCurves(ctx context.Context, accountID string, periodStart, periodEnd time.Time, buckets []domain.ResponseCurveBucket, now time.Time) error
	SaveTrackingIssues(ctx context.Context, accountID string, periodStart, periodEnd time.Time, issues []domain.TrackingHealthIssue, now time.Time) error
	SaveLagDependencies(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.LagDependencyStat, now time.Time) error
	SaveCreativeRisks(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.CreativeRiskStat, now time.Time) error
}

// LockFactory builds the per-account pipeline lock. Injectable for tests.
type LockFactory func(accountID string) distlock.DistLock

// ErrAccountBusy means another runner holds the account's pipeline lock.
var ErrAccountBusy = errors.New("account pipeline already running")

// PipelineRunner executes one sync job: classify, aggregate, build
// features, and detect anomalies for every week in the job window,
// strictly week-ascending, then refreshes the longitudinal analysis.
type PipelineRunner struct {
	store    PipelineStore
	throttle *AccountThrottle
	limit    ThrottleLimit
	locks    LockFactory

	det config.DetectorConfig
	ana config.AnalyzerConfig
}

// NewPipelineRunner creates a runner. throttle may be nil to disable
// API budgeting (tests, single-tenant deployments).
func NewPipelineRunner(store PipelineStore, throttle *AccountThrottle, locks LockFactory, det config.DetectorConfig, ana config.AnalyzerConfig) *PipelineRunner {
	return &PipelineRunner{
		store:    store,
		throttle: throttle,
		limit:    DefaultThrottleLimit,
		locks:    locks,
		det:      det,
		ana:      ana,
	}
}

// RunJob executes a claimed job to completion. Returns the result
// summary; an ErrThrottled or ErrAccountBusy error means the job should
// go back to pending with its cursor intact.
func (p *PipelineRunner) RunJob(ctx context.Context, job *domain.SyncJob) (domain.ResultSummary, error) {
	sum := job.Summary

	lock := p.locks(job.AccountID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return sum, fmt.Errorf("acquire account lock: %w", err)
	}
	if !ok {
		return sum, ErrAccountBusy
	}
	defer lock.Release(context.WithoutCancel(ctx))

	switch job.Type {
	case domain.JobInsightsWeekly:
		if sum, err = p.runWeekly(ctx, job, sum); err != nil {
			return sum, err
		}
	case domain.JobCampaigns, domain.JobAdsets, domain.JobAds:
		// Entity jobs re-derive account rollups from the already synced
		// raw rows; the weekly tables are left alone.
	default:
		return sum, fmt.Errorf("unknown job type %q", job.Type)
	}

	if err := p.refreshAnalysis(ctx, job.AccountID, job.WindowEnd); err != nil {
		return sum, err
	}
	return sum, nil
}

// runWeekly materializes results, features, and anomalies week by week.
// The cursor advances only after a week is fully durable, so a retried
// job resumes at the first incomplete week.
func (p *PipelineRunner) runWeekly(ctx context.Context, job *domain.SyncJob, sum domain.ResultSummary) (domain.ResultSummary, error) {
	mapping, err := p.loadMapping(ctx)
	if err != nil {
		return sum, err
	}
	agg := aggregate.New(mapping)
	builder := feature.NewBuilder(p.det)
	detector := anomaly.NewDetector(p.det)

	start := job.WindowStart
	if job.Cursor != nil {
		start = job.Cursor.AddDate(0, 0, 7)
	}

	for week := start; !week.After(job.WindowEnd); week = week.AddDate(0, 0, 7) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if p.throttle != nil {
			allowed, retry, err := p.throttle.Allow(ctx, job.AccountID, 1, p.limit)
			if err != nil {
				return sum, err
			}
			if !allowed {
				return sum, fmt.Errorf("%w: retry in %s", ErrThrottled, retry)
			}
		}

		weekSum, err := p.runWeek(ctx, job.AccountID, week, agg, builder, detector)
		if err != nil {
			sum.Errored++
			return sum, fmt.Errorf("week %s: %w", week.Format("2006-01-02"), err)
		}
		sum.Inserted += weekSum.Inserted
		sum.Updated += weekSum.Updated

		if err := p.store.SetJobCursor(ctx, job.ID, week, sum); err != nil {
			return sum, fmt.Errorf("checkpoint cursor: %w", err)
		}
	}
	return sum, nil
}

func (p *PipelineRunner) loadMapping(ctx context.Context) (*classify.Mapping, error) {
	t, err := p.store.Mappings(ctx)
	if errors.Is(err, insight.ErrNotFound) {
		return classify.NewMapping(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	return classify.NewMappingFromTables(t.Actions, t.Goals, t.GoalDefaults), nil
}

// runWeek materializes one (account, week): result rows from the raw
// rows, then feature rows against the trailing history, then anomalies.
func (p *PipelineRunner) runWeek(ctx context.Context, accountID string, week time.Time, agg *aggregate.Aggregator, builder *feature.Builder, detector *anomaly.Detector) (domain.ResultSummary, error) {
	var sum domain.ResultSummary
	now := time.Now().UTC()

	histFrom := week.AddDate(0, 0, -7*p.det.BaselineWindowWeeks)
	insights, err := p.store.InsightsWindow(ctx, accountID, histFrom, week)
	if err != nil {
		return sum, err
	}

	var weekResults []domain.WeeklyResult
	families := make(map[string]domain.ResultFamily) // ad -> primary family this week
	weekRows := make(map[string]domain.WeeklyInsight)
	var weekAds []string
	for _, in := range insights {
		if !in.WeekStart.Equal(week) {
			continue
		}
		weekResults = append(weekResults, agg.Aggregate(in, now)...)
		families[in.AdID] = agg.PrimaryFamily(in)
		weekRows[in.AdID] = in
		weekAds = append(weekAds, in.AdID)
	}
	if len(weekAds) == 0 {
		return sum, nil // nothing synced for this week
	}

	if err := p.store.ReplaceWeekResults(ctx, accountID, week, weekResults); err != nil {
		return sum, err
	}
	sum.Inserted += len(weekResults)

	// Prior weeks' results are already materialized; the current week's
	// are in hand. Strict week-ascending order makes this safe.
	prior, err := p.store.ResultsWindow(ctx, accountID, histFrom, week.AddDate(0, 0, -7))
	if err != nil {
		return sum, err
	}
	histories := buildHistories(insights, append(prior, weekResults...), families)

	var features []domain.AdWeeklyFeature
	var anomalies []domain.AdWeeklyAnomaly
	for _, adID := range weekAds {
		f := builder.Build(accountID, adID, week, families[adID], histories[adID], now)
		features = append(features, f)

		rankings := rankingTriggers(weekRows[adID])
		for _, a := range detector.Detect(f, now) {
			a.ID = uuid.New().String()
			if len(rankings) > 0 {
				a.LikelyTriggers = append(append([]domain.LikelyTrigger(nil), a.LikelyTriggers...), rankings...)
			}
			anomalies = append(anomalies, a)
		}
	}

	if err := p.store.UpsertFeatures(ctx, features); err != nil {
		return sum, err
	}
	sum.Updated += len(features)

	if len(anomalies) > 0 {
		if err := p.store.UpsertAnomalies(ctx, anomalies); err != nil {
			return sum, err
		}
		log.Printf("[PipelineRunner] Account %s week %s: %d anomalies",
			accountID, week.Format("2006-01-02"), len(anomalies))
	}
	return sum, nil
}

// rankingTriggers annotates anomalies with the platform's categorical
// diagnostics whenever the week's row ranked below its auction peers.
// Scores come from the same label mapping the classifier uses; "average"
// is the baseline the delta is measured against.
func rankingTriggers(in domain.WeeklyInsight) []domain.LikelyTrigger {
	avg := classify.RankingScore("average")
	labels := []struct{ metric, label string }{
		{"quality_ranking", in.QualityRanking},
		{"engagement_ranking", in.EngagementRanking},
		{"conversion_ranking", in.ConversionRanking},
	}

	var out []domain.LikelyTrigger
	for _, l := range labels {
		if !strings.HasPrefix(l.label, "below_average") {
			continue
		}
		score := classify.RankingScore(l.label)
		out = append(out, domain.LikelyTrigger{
			Metric:   l.metric,
			Current:  score,
			Baseline: avg,
			DeltaPct: (score/avg - 1) * 100,
		})
	}
	return out
}

// buildHistories flattens raw rows and result rows into per-ad weekly
// metric histories keyed by the ad's current primary family.
func buildHistories(insights []domain.WeeklyInsight, results []domain.WeeklyResult, families map[string]domain.ResultFamily) map[string]feature.History {
	type resKey struct {
		adID   string
		week   time.Time
		family domain.ResultFamily
	}
	byKey := make(map[resKey]domain.WeeklyResult, len(results))
	for _, r := range results {
		byKey[resKey{r.AdID, r.WeekStart, r.ResultFamily}] = r
	}

	out := make(map[string]feature.History)
	for _, in := range insights {
		fam, tracked := families[in.AdID]
		if !tracked {
			continue
		}
		h, ok := out[in.AdID]
		if !ok {
			h = make(feature.History)
			out[in.AdID] = h
		}

		m := feature.WeekMetrics{
			Spend:     in.Spend,
			Frequency: in.Frequency,
			CTR:       in.CTR,
			CPC:       in.CPC,
			CPM:       in.CPM,
			Reach:     float64(in.Reach),
		}
		if r, ok := byKey[resKey{in.AdID, in.WeekStart, fam}]; ok {
			m.ResultCount = r.ResultCount
			m.CPR = r.CPR
		}
		h[in.WeekStart] = m
	}
	return out
}

// refreshAnalysis re-runs the longitudinal analyzers over the trailing
// analysis period and fully replaces the stored snapshots.
func (p *PipelineRunner) refreshAnalysis(ctx context.Context, accountID string, periodEnd time.Time) error {
	now := time.Now().UTC()
	periodStart := periodEnd.AddDate(0, 0, -7*(p.ana.PeriodWeeks-1))

	h := &analyze.HistoryInput{
		AccountID:   accountID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}

	var err error
	if h.Insights, err = p.store.InsightsWindow(ctx, accountID, periodStart, periodEnd); err != nil {
		return err
	}
	if h.Results, err = p.store.ResultsWindow(ctx, accountID, periodStart, periodEnd); err != nil {
		return err
	}
	if h.Features, err = p.store.FeaturesWindow(ctx, accountID, periodStart, periodEnd); err != nil {
		return err
	}
	if h.Anomalies, err = p.store.AnomaliesWindow(ctx, accountID, periodStart, periodEnd); err != nil {
		return err
	}

	if err := p.store.SavePareto(ctx, accountID, periodStart, periodEnd, analyze.Pareto(h, p.ana, now), now); err != nil {
		return err
	}
	if err := p.store.SaveLifecycle(ctx, accountID, periodStart, periodEnd, analyze.Lifecycle(h, p.ana, now), now); err != nil {
		return err
	}
	if err := p.store.SaveResponseCurves(ctx, accountID, periodStart, periodEnd, analyze.ResponseCurve(h, p.ana, now), now); err != nil {
		return err
	}
	if err := p.store.SaveTrackingIssues(ctx, accountID, periodStart, periodEnd, analyze.TrackingHealth(h, p.ana, now), now); err != nil {
		return err
	}
	if err := p.store.SaveLagDependencies(ctx, accountID, periodStart, periodEnd, analyze.LagDependencies(h, p.det, p.ana, now), now); err != nil {
		return err
	}
	if err := p.store.SaveCreativeRisks(ctx, accountID, periodStart, periodEnd, analyze.CreativeRisk(h, p.ana, now), now); err != nil {
		return err
	}
	return nil
}
