package domain

import "time"

// JobType enumerates the sync job kinds the scheduler dispatches.
type JobType string

const (
	JobCampaigns      JobType = "campaigns"
	JobAdsets         JobType = "adsets"
	JobAds            JobType = "ads"
	JobInsightsWeekly JobType = "insights_weekly"
)

// JobStatus is the lifecycle of a sync job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ResultSummary counts the outcome of a completed job run.
type ResultSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errored  int `json:"errored"`
}

// SyncJob is one schedulable unit of pipeline work for an account.
// Jobs are idempotent and resumable: Cursor records the last fully
// materialized week so a retried job picks up where it stopped.
type SyncJob struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Type      JobType   `json:"job_type" db:"job_type"`
	Status    JobStatus `json:"status" db:"status"`

	WindowStart time.Time  `json:"window_start" db:"window_start"`
	WindowEnd   time.Time  `json:"window_end" db:"window_end"`
	Cursor      *time.Time `json:"cursor" db:"cursor"`

	Attempts    int        `json:"attempts" db:"attempts"`
	LastError   string     `json:"last_error,omitempty" db:"last_error"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty" db:"last_error_at"`

	Summary ResultSummary `json:"result_summary" db:"result_summary"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// IsTerminal returns true once the job is in a final state.
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
