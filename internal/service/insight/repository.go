package insight

import (
	"context"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// Repository defines the data access contract for the pipeline surface.
// Implementations must be safe for concurrent use.
type Repository interface {
	// UpsertInsights writes a batch of raw rows, replacing any existing
	// (ad, week) rows wholesale. Returns inserted and updated counts.
	UpsertInsights(ctx context.Context, rows []domain.WeeklyInsight) (inserted, updated int, err error)

	// ReplaceMappings swaps the classification tables atomically.
	ReplaceMappings(ctx context.Context, t domain.MappingTables) error

	// Mappings returns the current classification tables. Returns
	// ErrNotFound before the first refresh.
	Mappings(ctx context.Context) (*domain.MappingTables, error)

	// ListFeatures returns feature rows matching the filter, ordered by
	// (ad_id, week_start).
	ListFeatures(ctx context.Context, f FeatureFilter) ([]domain.AdWeeklyFeature, error)

	// ListAnomalies returns anomaly rows matching the filter, ordered by
	// score descending.
	ListAnomalies(ctx context.Context, f AnomalyFilter) ([]domain.AdWeeklyAnomaly, error)

	// GetAnomaly returns one anomaly by ID. Returns ErrNotFound.
	GetAnomaly(ctx context.Context, id string) (*domain.AdWeeklyAnomaly, error)

	// SetAnomalyStatus updates status and review note of one anomaly.
	SetAnomalyStatus(ctx context.Context, id string, status domain.AnomalyStatus, note string) error

	// Latest analyzer outputs for an account, most recent computation.
	ParetoStats(ctx context.Context, accountID string) ([]domain.ParetoStat, error)
	LifecycleStats(ctx context.Context, accountID string) ([]domain.CreativeLifecycleStat, error)
	ResponseCurves(ctx context.Context, accountID string) ([]domain.ResponseCurveBucket, error)
	TrackingIssues(ctx context.Context, accountID string) ([]domain.TrackingHealthIssue, error)
	LagDependencies(ctx context.Context, accountID string) ([]domain.LagDependencyStat, error)
	CreativeRisks(ctx context.Context, accountID string) ([]domain.CreativeRiskStat, error)

	// CreateJob inserts a pending sync job.
	CreateJob(ctx context.Context, j *domain.SyncJob) error

	// GetJob returns one job by ID. Returns ErrNotFound.
	GetJob(ctx context.Context, id string) (*domain.SyncJob, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, f JobFilter) ([]domain.SyncJob, error)

	// HasActiveJob reports whether a pending or running job of the given
	// type exists for the account.
	HasActiveJob(ctx context.Context, accountID string, t domain.JobType) (bool, error)
}

// FeatureFilter narrows feature reads.
type FeatureFilter struct {
	AccountID string
	AdID      string
	WeekFrom  *time.Time
	WeekTo    *time.Time
	Limit     int
	Offset    int
}

// AnomalyFilter narrows anomaly reads.
type AnomalyFilter struct {
	AccountID string
	AdID      string
	WeekFrom  *time.Time
	WeekTo    *time.Time
	Status    string
	Type      string
	MinScore  float64
	Limit     int
	Offset    int
}

// JobFilter narrows sync-job reads.
type JobFilter struct {
	AccountID string
	Status    string
	Type      string
	Limit     int
	Offset    int
}
