package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/storage"
)

const DefaultResyncInterval = time.Minute

type TestLister interface {
	ListTests(ctx context.Context, filter storage.TestFilter) ([]checks.Test, error)
}

// Runner is satisfied by *Orchestrator.
type Runner interface {
	Run(ctx context.Context, testID string, wait bool) (RunResult, error)
}

// Scheduler runs every enabled test carrying a schedule_interval_seconds
// parameter on its own ticker. Sync reconciles the job set with the store.
type Scheduler struct {
	tests  TestLister
	runner Runner
	resync time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*scheduledJob
	ctx    context.Context
	cancel context.CancelFunc
}

type scheduledJob struct {
	testID   string
	interval time.Duration
	stop     chan struct{}
}

type JobInfo struct {
	TestID          string  `json:"test_id"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

func NewScheduler(tests TestLister, runner Runner, resync time.Duration, logger *slog.Logger) *Scheduler {
	if resync <= 0 {
		resync = DefaultResyncInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tests:  tests,
		runner: runner,
		resync: resync,
		logger: logger,
		jobs:   map[string]*scheduledJob{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stop cancels every ticker. The scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		close(job.stop)
	}
	s.jobs = map[string]*scheduledJob{}
}

// Schedule starts a ticker for the test, replacing any existing one.
func (s *Scheduler) Schedule(testID string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if existing, ok := s.jobs[testID]; ok {
		close(existing.stop)
	}
	job := &scheduledJob{testID: testID, interval: interval, stop: make(chan struct{})}
	s.jobs[testID] = job
	go s.runTicker(job)
}

func (s *Scheduler) Unschedule(testID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[testID]; ok {
		close(job.stop)
		delete(s.jobs, testID)
	}
}

func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]JobInfo, 0, len(s.jobs))
	for id, job := range s.jobs {
		jobs = append(jobs, JobInfo{TestID: id, IntervalSeconds: job.interval.Seconds()})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].TestID < jobs[j].TestID })
	return jobs
}

func (s *Scheduler) interval(testID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[testID]
	if !ok {
		return 0, false
	}
	return job.interval, true
}

// Sync loads the enabled tests and schedules, reschedules or drops jobs so
// that exactly the tests with a valid interval are ticking.
func (s *Scheduler) Sync(ctx context.Context) error {
	enabled := true
	tests, err := s.tests.ListTests(ctx, storage.TestFilter{Enabled: &enabled})
	if err != nil {
		return err
	}
	want := make(map[string]time.Duration, len(tests))
	for _, test := range tests {
		interval, ok, err := checks.ScheduleInterval(test.Parameters)
		if err != nil {
			s.logger.Warn("invalid schedule interval", slog.String("test_id", test.ID), slog.String("error", err.Error()))
			continue
		}
		if ok {
			want[test.ID] = interval
		}
	}
	for _, job := range s.ListJobs() {
		if _, ok := want[job.TestID]; !ok {
			s.Unschedule(job.TestID)
			s.logger.Info("test unscheduled", slog.String("test_id", job.TestID))
		}
	}
	for id, interval := range want {
		if current, ok := s.interval(id); ok && current == interval {
			continue
		}
		s.Schedule(id, interval)
		s.logger.Info("test scheduled", slog.String("test_id", id), slog.Duration("interval", interval))
	}
	return nil
}

// Run syncs immediately and then on every resync interval until ctx is
// cancelled, at which point all jobs are stopped.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.Stop()
	if err := s.Sync(ctx); err != nil {
		s.logger.Error("schedule sync failed", slog.String("error", err.Error()))
	}
	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("schedule sync failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runTicker(job *scheduledJob) {
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.trigger(job)
		case <-job.stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) trigger(job *scheduledJob) {
	res, err := s.runner.Run(s.ctx, job.testID, false)
	switch {
	case err == nil:
		s.logger.Debug("scheduled run queued", slog.String("test_id", job.testID), slog.String("execution_id", res.ExecutionID))
	case errors.Is(err, ErrAlreadyActive):
		s.logger.Debug("scheduled run skipped: execution active", slog.String("test_id", job.testID))
	case IsNotFound(err):
		s.drop(job)
		s.logger.Info("scheduled test removed", slog.String("test_id", job.testID))
	default:
		s.logger.Error("scheduled run failed", slog.String("test_id", job.testID), slog.String("error", err.Error()))
	}
}

// drop removes job unless it was already replaced by a newer Schedule.
func (s *Scheduler) drop(job *scheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.jobs[job.testID]; ok && current == job {
		close(job.stop)
		delete(s.jobs, job.testID)
	}
}
