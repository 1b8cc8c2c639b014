package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

const (
	// DefaultPollInterval is how often the scheduler checks for
	// claimable jobs when the queue ran dry.
	DefaultPollInterval = 15 * time.Second

	// DefaultMaxAttempts is how many times a job may fail before it is
	// parked as failed instead of returning to pending.
	DefaultMaxAttempts = 3
)

// SchedulerStore is the job-queue surface the scheduler drives.
// Satisfied by repository/postgres.Repo.
type SchedulerStore interface {
	ClaimNextJob(ctx context.Context, now time.Time) (*domain.SyncJob, error)
	CompleteJob(ctx context.Context, id string, sum domain.ResultSummary, now time.Time) error
	FailJob(ctx context.Context, id string, cause string, maxAttempts int, now time.Time) error
	DeferJob(ctx context.Context, id string, cause string, now time.Time) error
}

// Scheduler claims pending sync jobs one at a time and runs them through
// the pipeline. Multiple scheduler processes are safe: claims use
// row-level skip locking and runs take a per-account lock.
type Scheduler struct {
	store  SchedulerStore
	runner *PipelineRunner

	workerID     string
	pollInterval time.Duration
	maxAttempts  int

	jobsCompleted int64
	jobsFailed    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewScheduler creates a scheduler with default polling and retry limits.
func NewScheduler(store SchedulerStore, runner *PipelineRunner) *Scheduler {
	hostname, _ := os.Hostname()
	return &Scheduler{
		store:        store,
		runner:       runner,
		workerID:     fmt.Sprintf("pipeline-%s-%d", hostname, time.Now().UnixNano()%10000),
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
}

// SetPollInterval overrides the claim polling interval.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Start begins the claim loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Scheduler] %s starting with poll interval %v", s.workerID, s.pollInterval)

	s.wg.Add(1)
	go s.claimLoop()
	return nil
}

// Stop gracefully stops the scheduler, letting an in-flight job finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Printf("[Scheduler] Stopping...")
	s.cancel()
	s.wg.Wait()
	log.Printf("[Scheduler] Stopped. Completed: %d jobs, Failed: %d",
		atomic.LoadInt64(&s.jobsCompleted), atomic.LoadInt64(&s.jobsFailed))
}

func (s *Scheduler) claimLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before sleeping again.
			for s.runNext() {
				if s.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// runNext claims and runs one job. Returns true if a job was claimed.
func (s *Scheduler) runNext() bool {
	job, err := s.store.ClaimNextJob(s.ctx, time.Now().UTC())
	if err != nil {
		log.Printf("[Scheduler] Claim failed: %v", err)
		return false
	}
	if job == nil {
		return false
	}

	log.Printf("[Scheduler] Running job %s (%s, account %s, window %s..%s, attempt %d)",
		job.ID, job.Type, job.AccountID,
		job.WindowStart.Format("2006-01-02"), job.WindowEnd.Format("2006-01-02"), job.Attempts)

	sum, err := s.runner.RunJob(s.ctx, job)
	now := time.Now().UTC()

	switch {
	case err == nil:
		if err := s.store.CompleteJob(s.ctx, job.ID, sum, now); err != nil {
			log.Printf("[Scheduler] Job %s finished but completion write failed: %v", job.ID, err)
			return true
		}
		atomic.AddInt64(&s.jobsCompleted, 1)
		log.Printf("[Scheduler] Job %s completed: %d inserted, %d updated", job.ID, sum.Inserted, sum.Updated)

	case errors.Is(err, ErrThrottled), errors.Is(err, ErrAccountBusy):
		// Not the job's fault; give the attempt back so the retry
		// budget only counts real failures.
		if derr := s.store.DeferJob(s.ctx, job.ID, err.Error(), now); derr != nil {
			log.Printf("[Scheduler] Job %s defer write failed: %v", job.ID, derr)
		}
		log.Printf("[Scheduler] Job %s deferred: %v", job.ID, err)
		return false // stop draining; the account or budget needs time

	default:
		atomic.AddInt64(&s.jobsFailed, 1)
		if ferr := s.store.FailJob(s.ctx, job.ID, err.Error(), s.maxAttempts, now); ferr != nil {
			log.Printf("[Scheduler] Job %s failure write failed: %v", job.ID, ferr)
		}
		log.Printf("[Scheduler] Job %s failed (attempt %d/%d): %v", job.ID, job.Attempts, s.maxAttempts, err)
	}
	return true
}
