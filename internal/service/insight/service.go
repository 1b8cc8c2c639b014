package insight

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/adpulse/internal/domain"
)

// Service implements the pipeline data surface. All public methods are
// safe for concurrent use if the underlying repository is.
type Service struct {
	repo Repository
}

// NewService creates an insight service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IngestWeekly validates and upserts a batch of raw weekly rows, then
// enqueues a pipeline job covering the batch's week window unless one is
// already pending or running for the account. Returns the created job
// (nil when a job was already active) and the upsert summary.
func (s *Service) IngestWeekly(ctx context.Context, accountID string, rows []domain.WeeklyInsight, now time.Time) (*domain.SyncJob, domain.ResultSummary, error) {
	var sum domain.ResultSummary
	if len(rows) == 0 {
		return nil, sum, ErrEmptyBatch
	}
	if accountID == "" {
		return nil, sum, fmt.Errorf("account id is required")
	}

	windowStart := domain.WeekStartOf(rows[0].WeekStart)
	windowEnd := windowStart
	for i := range rows {
		if rows[i].AdID == "" {
			return nil, sum, fmt.Errorf("row %d: ad id is required", i)
		}
		rows[i].AccountID = accountID
		rows[i].WeekStart = domain.WeekStartOf(rows[i].WeekStart)
		rows[i].SyncedAt = now

		if rows[i].WeekStart.Before(windowStart) {
			windowStart = rows[i].WeekStart
		}
		if rows[i].WeekStart.After(windowEnd) {
			windowEnd = rows[i].WeekStart
		}
	}

	ins, upd, err := s.repo.UpsertInsights(ctx, rows)
	if err != nil {
		return nil, sum, fmt.Errorf("upsert insights: %w", err)
	}
	sum.Inserted = ins
	sum.Updated = upd

	job, err := s.enqueuePipeline(ctx, accountID, windowStart, windowEnd, now)
	if err != nil {
		// The rows are already durable; the next scheduler sweep or the
		// next ingest will pick them up.
		log.Printf("[insight.Service] account %s: enqueue after ingest failed: %v", accountID, err)
		return nil, sum, nil
	}
	return job, sum, nil
}

func (s *Service) enqueuePipeline(ctx context.Context, accountID string, windowStart, windowEnd time.Time, now time.Time) (*domain.SyncJob, error) {
	active, err := s.repo.HasActiveJob(ctx, accountID, domain.JobInsightsWeekly)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, nil
	}

	job := &domain.SyncJob{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Type:        domain.JobInsightsWeekly,
		Status:      domain.JobPending,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		CreatedAt:   now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	log.Printf("[insight.Service] account %s: enqueued %s job %s (%s..%s)",
		accountID, job.Type, job.ID,
		windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))
	return job, nil
}

// RefreshMappings replaces the classification tables.
func (s *Service) RefreshMappings(ctx context.Context, t domain.MappingTables, now time.Time) error {
	if len(t.Actions) == 0 && len(t.Goals) == 0 {
		return fmt.Errorf("mapping tables are empty")
	}
	t.UpdatedAt = now
	return s.repo.ReplaceMappings(ctx, t)
}

// Mappings returns the current classification tables.
func (s *Service) Mappings(ctx context.Context) (*domain.MappingTables, error) {
	return s.repo.Mappings(ctx)
}

// Features returns feature rows matching the filter.
func (s *Service) Features(ctx context.Context, f FeatureFilter) ([]domain.AdWeeklyFeature, error) {
	if f.AccountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	return s.repo.ListFeatures(ctx, f)
}

// Anomalies returns anomaly rows matching the filter.
func (s *Service) Anomalies(ctx context.Context, f AnomalyFilter) ([]domain.AdWeeklyAnomaly, error) {
	if f.AccountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	if f.Status != "" && !domain.ValidAnomalyStatus(domain.AnomalyStatus(f.Status)) {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListAnomalies(ctx, f)
}

// UpdateAnomalyStatus moves an anomaly through its review lifecycle.
// Status is the only externally writable anomaly field; setting it back
// to `new` is the explicit re-open.
func (s *Service) UpdateAnomalyStatus(ctx context.Context, id string, status domain.AnomalyStatus, note string) (*domain.AdWeeklyAnomaly, error) {
	if !domain.ValidAnomalyStatus(status) {
		return nil, ErrInvalidStatus
	}

	a, err := s.repo.GetAnomaly(ctx, id)
	if err != nil {
		return nil, err
	}

	// A transition without a note keeps the note already on record.
	if note == "" {
		note = a.ReviewNote
	}

	if err := s.repo.SetAnomalyStatus(ctx, id, status, note); err != nil {
		return nil, fmt.Errorf("set anomaly status: %w", err)
	}
	log.Printf("[insight.Service] anomaly %s: %s -> %s", id, a.Status, status)

	a.Status = status
	a.ReviewNote = note
	return a, nil
}

// Pareto returns the latest Pareto/waste output for an account.
func (s *Service) Pareto(ctx context.Context, accountID string) ([]domain.ParetoStat, error) {
	return s.repo.ParetoStats(ctx, accountID)
}

// Lifecycle returns the latest creative lifecycle output for an account.
func (s *Service) Lifecycle(ctx context.Context, accountID string) ([]domain.CreativeLifecycleStat, error) {
	return s.repo.LifecycleStats(ctx, accountID)
}

// ResponseCurve returns the latest response-curve buckets for an account.
func (s *Service) ResponseCurve(ctx context.Context, accountID string) ([]domain.ResponseCurveBucket, error) {
	return s.repo.ResponseCurves(ctx, accountID)
}

// TrackingHealth returns the latest tracking-health issues for an account.
func (s *Service) TrackingHealth(ctx context.Context, accountID string) ([]domain.TrackingHealthIssue, error) {
	return s.repo.TrackingIssues(ctx, accountID)
}

// LagDependencies returns the learned lag table for an account.
func (s *Service) LagDependencies(ctx context.Context, accountID string) ([]domain.LagDependencyStat, error) {
	return s.repo.LagDependencies(ctx, accountID)
}

// CreativeRisk returns the latest creative risk rows for an account.
func (s *Service) CreativeRisk(ctx context.Context, accountID string) ([]domain.CreativeRiskStat, error) {
	return s.repo.CreativeRisks(ctx, accountID)
}

// CreateJob enqueues a sync job of the given type. One active job per
// (account, type) at a time.
func (s *Service) CreateJob(ctx context.Context, accountID string, t domain.JobType, windowStart, windowEnd time.Time, now time.Time) (*domain.SyncJob, error) {
	switch t {
	case domain.JobCampaigns, domain.JobAdsets, domain.JobAds, domain.JobInsightsWeekly:
	default:
		return nil, ErrInvalidJob
	}
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	active, err := s.repo.HasActiveJob(ctx, accountID, t)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrJobActive
	}

	job := &domain.SyncJob{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Type:        t,
		Status:      domain.JobPending,
		WindowStart: domain.WeekStartOf(windowStart),
		WindowEnd:   domain.WeekStartOf(windowEnd),
		CreatedAt:   now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Job returns one sync job by ID.
func (s *Service) Job(ctx context.Context, id string) (*domain.SyncJob, error) {
	return s.repo.GetJob(ctx, id)
}

// Jobs returns sync jobs matching the filter.
func (s *Service) Jobs(ctx context.Context, f JobFilter) ([]domain.SyncJob, error) {
	return s.repo.ListJobs(ctx, f)
}
