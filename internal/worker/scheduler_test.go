package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

type fakeJobQueue struct {
	mu        sync.Mutex
	jobs      []*domain.SyncJob
	claimed   map[string]*domain.SyncJob
	completed []string
	failed    []string
	deferred  []string
}

func (q *fakeJobQueue) ClaimNextJob(ctx context.Context, now time.Time) (*domain.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	job.Status = domain.JobRunning
	job.Attempts++
	if q.claimed == nil {
		q.claimed = map[string]*domain.SyncJob{}
	}
	q.claimed[job.ID] = job
	return job, nil
}

func (q *fakeJobQueue) CompleteJob(ctx context.Context, id string, sum domain.ResultSummary, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeJobQueue) FailJob(ctx context.Context, id string, cause string, maxAttempts int, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job := q.claimed[id]; job != nil && job.Attempts < maxAttempts {
		job.Status = domain.JobPending
		q.jobs = append(q.jobs, job)
		return nil
	}
	q.failed = append(q.failed, id)
	return nil
}

func (q *fakeJobQueue) DeferJob(ctx context.Context, id string, cause string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deferred = append(q.deferred, id)
	if job := q.claimed[id]; job != nil {
		if job.Attempts > 0 {
			job.Attempts--
		}
		job.Status = domain.JobPending
		q.jobs = append(q.jobs, job)
	}
	return nil
}

func (q *fakeJobQueue) outcome() (completed, failed []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.completed...), append([]string(nil), q.failed...)
}

func (q *fakeJobQueue) deferredIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deferred...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSchedulerRunsClaimedJob(t *testing.T) {
	store := newFakeStore()
	store.insights = append(store.insights, leadInsight("ad_a", testWeekN(2), 100, 10))
	runner := testRunner(store, &fakeLock{})

	job := weeklyJob(nil)
	job.WindowEnd = testWeekN(2)
	queue := &fakeJobQueue{jobs: []*domain.SyncJob{job}}

	s := NewScheduler(queue, runner)
	s.SetPollInterval(10 * time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool {
		completed, _ := queue.outcome()
		return len(completed) == 1
	})

	completed, failed := queue.outcome()
	if completed[0] != "job_1" || len(failed) != 0 {
		t.Fatalf("completed=%v failed=%v", completed, failed)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.results[testWeekN(2)]) == 0 {
		t.Fatal("scheduler run left no materialized results")
	}
}

func TestSchedulerFailsBadJob(t *testing.T) {
	store := newFakeStore()
	runner := testRunner(store, &fakeLock{})

	job := weeklyJob(nil)
	job.Type = domain.JobType("bogus")
	queue := &fakeJobQueue{jobs: []*domain.SyncJob{job}}

	s := NewScheduler(queue, runner)
	s.SetPollInterval(10 * time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool {
		_, failed := queue.outcome()
		return len(failed) == 1
	})
}

func TestSchedulerDeferralKeepsRetryBudget(t *testing.T) {
	store := newFakeStore()
	lock := &fakeLock{busy: true}
	runner := testRunner(store, lock)

	job := weeklyJob(nil)
	job.Type = domain.JobType("bogus") // every real run errors
	queue := &fakeJobQueue{jobs: []*domain.SyncJob{job}}

	s := NewScheduler(queue, runner)
	s.ctx = context.Background()

	// Account-lock contention must send the job back to pending with
	// its attempt returned.
	for i := 0; i < 3; i++ {
		s.runNext()
	}
	if got := len(queue.deferredIDs()); got != 3 {
		t.Fatalf("expected 3 deferrals, got %d", got)
	}
	if job.Attempts != 0 {
		t.Fatalf("deferrals consumed the retry budget: attempts=%d", job.Attempts)
	}
	if _, failed := queue.outcome(); len(failed) != 0 {
		t.Fatalf("deferred job was parked as failed: %v", failed)
	}

	// Once the account frees up the job still gets its full run of real
	// failures before parking.
	lock.busy = false
	for i := 0; i < DefaultMaxAttempts; i++ {
		s.runNext()
	}
	_, failed := queue.outcome()
	if len(failed) != 1 || failed[0] != job.ID {
		t.Fatalf("expected park after %d real failures, got %v", DefaultMaxAttempts, failed)
	}
	if job.Attempts != DefaultMaxAttempts {
		t.Fatalf("attempts=%d, want %d", job.Attempts, DefaultMaxAttempts)
	}
}

func TestSchedulerDoubleStart(t *testing.T) {
	s := NewScheduler(&fakeJobQueue{}, testRunner(newFakeStore(), &fakeLock{}))
	s.SetPollInterval(time.Hour)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(); err == nil {
		t.Fatal("second Start should fail while running")
	}
}
