package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/distlock"
	"github.com/ignite/adpulse/internal/service/insight"
)

// fakeLock is an in-process DistLock for runner tests.
type fakeLock struct {
	busy     bool
	acquired int
	released int
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) {
	if l.busy {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released++
	return nil
}

// fakeStore is an in-memory PipelineStore.
type fakeStore struct {
	mu sync.Mutex

	mappings *domain.MappingTables
	insights []domain.WeeklyInsight

	results   map[time.Time][]domain.WeeklyResult
	features  []domain.AdWeeklyFeature
	anomalies []domain.AdWeeklyAnomaly

	cursors   []time.Time
	lastSum   domain.ResultSummary
	snapshots map[string]int // kind -> row count saved
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results:   make(map[time.Time][]domain.WeeklyResult),
		snapshots: make(map[string]int),
	}
}

func (s *fakeStore) Mappings(ctx context.Context) (*domain.MappingTables, error) {
	if s.mappings == nil {
		return nil, insight.ErrNotFound
	}
	return s.mappings, nil
}

func (s *fakeStore) InsightsWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.WeeklyInsight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WeeklyInsight
	for _, in := range s.insights {
		if in.AccountID == accountID && !in.WeekStart.Before(from) && !in.WeekStart.After(to) {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *fakeStore) ResultsWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.WeeklyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WeeklyResult
	for week, rows := range s.results {
		if week.Before(from) || week.After(to) {
			continue
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *fakeStore) FeaturesWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.AdWeeklyFeature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AdWeeklyFeature
	for _, f := range s.features {
		if !f.WeekStart.Before(from) && !f.WeekStart.After(to) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) AnomaliesWindow(ctx context.Context, accountID string, from, to time.Time) ([]domain.AdWeeklyAnomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AdWeeklyAnomaly
	for _, a := range s.anomalies {
		if !a.WeekStart.Before(from) && !a.WeekStart.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) ReplaceWeekResults(ctx context.Context, accountID string, week time.Time, rows []domain.WeeklyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[week] = rows
	return nil
}

func (s *fakeStore) UpsertFeatures(ctx context.Context, rows []domain.AdWeeklyFeature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, rows...)
	return nil
}

func (s *fakeStore) UpsertAnomalies(ctx context.Context, rows []domain.AdWeeklyAnomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range rows {
		if a.ID == "" {
			return errors.New("anomaly missing id")
		}
		s.anomalies = append(s.anomalies, a)
	}
	return nil
}

func (s *fakeStore) SetJobCursor(ctx context.Context, id string, cursor time.Time, sum domain.ResultSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors = append(s.cursors, cursor)
	s.lastSum = sum
	return nil
}

func (s *fakeStore) saveSnapshot(kind string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[kind] = n
}

func (s *fakeStore) SavePareto(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.ParetoStat, now time.Time) error {
	s.saveSnapshot("pareto", len(stats))
	return nil
}

func (s *fakeStore) SaveLifecycle(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.CreativeLifecycleStat, now time.Time) error {
	s.saveSnapshot("lifecycle", len(stats))
	return nil
}

func (s *fakeStore) SaveResponseCurves(ctx context.Context, accountID string, periodStart, periodEnd time.Time, buckets []domain.ResponseCurveBucket, now time.Time) error {
	s.saveSnapshot("response_curve", len(buckets))
	return nil
}

func (s *fakeStore) SaveTrackingIssues(ctx context.Context, accountID string, periodStart, periodEnd time.Time, issues []domain.TrackingHealthIssue, now time.Time) error {
	s.saveSnapshot("tracking_health", len(issues))
	return nil
}

func (s *fakeStore) SaveLagDependencies(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.LagDependencyStat, now time.Time) error {
	s.saveSnapshot("lag_dependencies", len(stats))
	return nil
}

func (s *fakeStore) SaveCreativeRisks(ctx context.Context, accountID string, periodStart, periodEnd time.Time, stats []domain.CreativeRiskStat, now time.Time) error {
	s.saveSnapshot("creative_risk", len(stats))
	return nil
}

var testWeek0 = time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC) // a Monday

func testWeekN(n int) time.Time { return testWeek0.AddDate(0, 0, 7*n) }

func leadInsight(adID string, week time.Time, spend float64, leads int64) domain.WeeklyInsight {
	return domain.WeeklyInsight{
		AccountID:        "act_1",
		CampaignID:       "c_1",
		AdsetID:          "as_1",
		AdID:             adID,
		AdName:           "Spring Promo - " + adID,
		WeekStart:        week,
		OptimizationGoal: "LEAD_GENERATION",
		Spend:            spend,
		Impressions:      10000,
		Reach:            4000,
		Frequency:        2.5,
		Clicks:           200,
		LinkClicks:       150,
		CTR:              2.0,
		CPC:              spend / 200,
		CPM:              spend / 10,
		Actions:          []domain.ActionCount{{ActionType: "lead", Count: leads}},
	}
}

func testRunner(store *fakeStore, lock *fakeLock) *PipelineRunner {
	locks := func(accountID string) distlock.DistLock { return lock }
	return NewPipelineRunner(store, nil, locks, config.DefaultDetectorConfig(), config.DefaultAnalyzerConfig())
}

func weeklyJob(cursor *time.Time) *domain.SyncJob {
	return &domain.SyncJob{
		ID:          "job_1",
		AccountID:   "act_1",
		Type:        domain.JobInsightsWeekly,
		Status:      domain.JobRunning,
		WindowStart: testWeekN(2),
		WindowEnd:   testWeekN(3),
		Cursor:      cursor,
	}
}

func TestRunJobMaterializesWindow(t *testing.T) {
	store := newFakeStore()
	for n := 0; n < 4; n++ {
		store.insights = append(store.insights,
			leadInsight("ad_a", testWeekN(n), 100, 10),
			leadInsight("ad_b", testWeekN(n), 50, 0),
		)
	}
	lock := &fakeLock{}
	runner := testRunner(store, lock)

	sum, err := runner.RunJob(context.Background(), weeklyJob(nil))
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	// Two windowed weeks, two ads each. ad_a yields a lead_form row,
	// ad_b a zero-result primary-family row.
	if got := len(store.results[testWeekN(2)]); got != 2 {
		t.Fatalf("week 2 results = %d, want 2", got)
	}
	if got := len(store.results[testWeekN(3)]); got != 2 {
		t.Fatalf("week 3 results = %d, want 2", got)
	}
	if sum.Inserted != 4 {
		t.Fatalf("summary inserted = %d, want 4", sum.Inserted)
	}
	if sum.Updated != 4 {
		t.Fatalf("summary updated (features) = %d, want 4", sum.Updated)
	}

	if len(store.cursors) != 2 || !store.cursors[1].Equal(testWeekN(3)) {
		t.Fatalf("cursor checkpoints = %v", store.cursors)
	}

	for _, kind := range []string{"pareto", "lifecycle", "response_curve", "tracking_health", "lag_dependencies", "creative_risk"} {
		if _, ok := store.snapshots[kind]; !ok {
			t.Fatalf("analysis snapshot %q not saved", kind)
		}
	}

	if lock.acquired != 1 || lock.released != 1 {
		t.Fatalf("lock acquired=%d released=%d", lock.acquired, lock.released)
	}
}

func TestRunJobZeroResultWeekHasNilCPR(t *testing.T) {
	store := newFakeStore()
	store.insights = append(store.insights, leadInsight("ad_b", testWeekN(2), 50, 0))
	runner := testRunner(store, &fakeLock{})

	job := weeklyJob(nil)
	job.WindowEnd = testWeekN(2)
	if _, err := runner.RunJob(context.Background(), job); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	rows := store.results[testWeekN(2)]
	if len(rows) != 1 {
		t.Fatalf("results = %d, want 1", len(rows))
	}
	if rows[0].ResultFamily != domain.FamilyLeadForm {
		t.Fatalf("family = %s, want lead_form", rows[0].ResultFamily)
	}
	if rows[0].ResultCount != 0 || rows[0].CPR != nil {
		t.Fatalf("zero-result row = count %d, cpr %v", rows[0].ResultCount, rows[0].CPR)
	}
}

func TestRunJobResumesFromCursor(t *testing.T) {
	store := newFakeStore()
	for n := 0; n < 4; n++ {
		store.insights = append(store.insights, leadInsight("ad_a", testWeekN(n), 100, 10))
	}
	runner := testRunner(store, &fakeLock{})

	cursor := testWeekN(2)
	sum, err := runner.RunJob(context.Background(), weeklyJob(&cursor))
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if _, ok := store.results[testWeekN(2)]; ok {
		t.Fatal("cursor week was reprocessed")
	}
	if _, ok := store.results[testWeekN(3)]; !ok {
		t.Fatal("week after cursor was not processed")
	}
	if sum.Inserted != 1 {
		t.Fatalf("summary inserted = %d, want 1", sum.Inserted)
	}
}

func TestRunJobAccountBusy(t *testing.T) {
	store := newFakeStore()
	runner := testRunner(store, &fakeLock{busy: true})

	_, err := runner.RunJob(context.Background(), weeklyJob(nil))
	if !errors.Is(err, ErrAccountBusy) {
		t.Fatalf("err = %v, want ErrAccountBusy", err)
	}
}

func TestRunJobEntityTypeOnlyRefreshesAnalysis(t *testing.T) {
	store := newFakeStore()
	store.insights = append(store.insights, leadInsight("ad_a", testWeekN(2), 100, 10))
	runner := testRunner(store, &fakeLock{})

	job := weeklyJob(nil)
	job.Type = domain.JobCampaigns
	if _, err := runner.RunJob(context.Background(), job); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	if len(store.results) != 0 {
		t.Fatal("entity job must not touch the weekly result tables")
	}
	if _, ok := store.snapshots["pareto"]; !ok {
		t.Fatal("entity job should still refresh analysis snapshots")
	}
}

func TestRunJobAnomaliesGetIDs(t *testing.T) {
	store := newFakeStore()
	// Stable eight-week baseline at CPR 10, then the window week spikes
	// to CPR 40 with frequency doubled.
	for n := 0; n < 8; n++ {
		store.insights = append(store.insights, leadInsight("ad_a", testWeekN(n), 100, 10))
	}
	spike := leadInsight("ad_a", testWeekN(8), 200, 5)
	spike.Frequency = 6.0
	spike.CTR = 0.5
	store.insights = append(store.insights, spike)

	runner := testRunner(store, &fakeLock{})
	job := weeklyJob(nil)
	job.WindowStart = testWeekN(8)
	job.WindowEnd = testWeekN(8)

	if _, err := runner.RunJob(context.Background(), job); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(store.anomalies) == 0 {
		t.Fatal("expected anomalies for the spike week")
	}
	seen := make(map[string]bool)
	for _, a := range store.anomalies {
		if a.ID == "" {
			t.Fatal("anomaly persisted without an id")
		}
		if seen[a.ID] {
			t.Fatalf("duplicate anomaly id %s", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestRunJobRankingLabelsAnnotateAnomalies(t *testing.T) {
	store := newFakeStore()
	for n := 0; n < 8; n++ {
		store.insights = append(store.insights, leadInsight("ad_a", testWeekN(n), 100, 10))
	}
	spike := leadInsight("ad_a", testWeekN(8), 200, 5)
	spike.Frequency = 6.0
	spike.CTR = 0.5
	spike.QualityRanking = "below_average_10"
	spike.EngagementRanking = "average"
	store.insights = append(store.insights, spike)

	runner := testRunner(store, &fakeLock{})
	job := weeklyJob(nil)
	job.WindowStart = testWeekN(8)
	job.WindowEnd = testWeekN(8)

	if _, err := runner.RunJob(context.Background(), job); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(store.anomalies) == 0 {
		t.Fatal("expected anomalies for the spike week")
	}
	for _, a := range store.anomalies {
		var quality *domain.LikelyTrigger
		for i, tr := range a.LikelyTriggers {
			if tr.Metric == "engagement_ranking" {
				t.Fatal("average ranking must not be annotated")
			}
			if tr.Metric == "quality_ranking" {
				quality = &a.LikelyTriggers[i]
			}
		}
		if quality == nil {
			t.Fatalf("anomaly %s missing quality_ranking trigger: %+v", a.Type, a.LikelyTriggers)
		}
		if quality.Current != 0.2 || quality.Baseline != 0.75 {
			t.Fatalf("unexpected ranking trigger values: %+v", quality)
		}
	}
}
