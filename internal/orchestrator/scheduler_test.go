package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"pipeline-validation/internal/checks"
)

func scheduledTest(id string, enabled bool, interval any) checks.Test {
	params := checks.Parameters{}
	if interval != nil {
		params[checks.ParamScheduleInterval] = interval
	}
	return checks.Test{ID: id, Type: checks.TypeVolume, Enabled: enabled, Parameters: params}
}

func waitForTasks(t *testing.T, queue *recordingQueue, n int) []Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tasks := queue.snapshot(); len(tasks) >= n {
			return tasks
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d tasks, got %d", n, len(queue.snapshot()))
	return nil
}

func TestSchedulerSyncSelectsEnabledTestsWithInterval(t *testing.T) {
	lister := &memLister{}
	lister.set(
		scheduledTest("hourly", true, 3600),
		scheduledTest("disabled", false, 60),
		scheduledTest("on_demand", true, nil),
		scheduledTest("zero", true, 0),
		scheduledTest("broken", true, "often"),
	)
	queue := &recordingQueue{}
	o, _ := newTestOrchestrator(&stubConnector{rows: countRows(500)}, queue)
	s := NewScheduler(lister, o, time.Hour, nil)
	defer s.Stop()

	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].TestID != "hourly" || jobs[0].IntervalSeconds != 3600 {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	lister.set(scheduledTest("hourly", true, 1800), scheduledTest("on_demand", true, 60))
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs = s.ListJobs()
	if len(jobs) != 2 || jobs[0].IntervalSeconds != 1800 || jobs[1].TestID != "on_demand" {
		t.Fatalf("unexpected jobs after resync %+v", jobs)
	}

	lister.set(scheduledTest("hourly", false, 1800))
	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs := s.ListJobs(); len(jobs) != 0 {
		t.Fatalf("disabled tests must be unscheduled, got %+v", jobs)
	}
	if len(queue.snapshot()) != 0 {
		t.Fatalf("no run expected before the first tick")
	}
}

func TestSchedulerSyncError(t *testing.T) {
	lister := &memLister{err: errors.New("db down")}
	s := NewScheduler(lister, &Orchestrator{}, time.Hour, nil)
	defer s.Stop()
	if err := s.Sync(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
}

func TestSchedulerTickQueuesRuns(t *testing.T) {
	queue := &recordingQueue{}
	o, results := newTestOrchestrator(&stubConnector{rows: countRows(500)}, queue)
	s := NewScheduler(&memLister{}, o, time.Hour, nil)
	defer s.Stop()

	s.Schedule("vol_001_test", 10*time.Millisecond)
	tasks := waitForTasks(t, queue, 2)
	for _, task := range tasks {
		if task.TestID != "vol_001_test" {
			t.Fatalf("unexpected task %+v", task)
		}
		if exec := results.get(task.ExecutionID); exec.Status != checks.StatusQueued {
			t.Fatalf("expected queued execution, got %+v", exec)
		}
	}

	s.Unschedule("vol_001_test")
	time.Sleep(20 * time.Millisecond)
	settled := len(queue.snapshot())
	time.Sleep(50 * time.Millisecond)
	if got := len(queue.snapshot()); got != settled {
		t.Fatalf("unscheduled test kept running: %d -> %d", settled, got)
	}
}

func TestSchedulerDropsMissingTest(t *testing.T) {
	queue := &recordingQueue{}
	o, _ := newTestOrchestrator(&stubConnector{rows: countRows(500)}, queue)
	s := NewScheduler(&memLister{}, o, time.Hour, nil)
	defer s.Stop()

	s.Schedule("deleted_test", 5*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for len(s.ListJobs()) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job for missing test still scheduled: %+v", s.ListJobs())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(queue.snapshot()) != 0 {
		t.Fatalf("missing test must not be queued")
	}
}

func TestSchedulerSkipsActiveExecutions(t *testing.T) {
	queue := &recordingQueue{}
	o, _ := newTestOrchestrator(&stubConnector{rows: countRows(500)}, queue)
	o.SingleFlight = true
	s := NewScheduler(&memLister{}, o, time.Hour, nil)
	defer s.Stop()

	s.Schedule("vol_001_test", 5*time.Millisecond)
	waitForTasks(t, queue, 1)
	time.Sleep(50 * time.Millisecond)
	if got := len(queue.snapshot()); got != 1 {
		t.Fatalf("queued execution must block further runs, got %d tasks", got)
	}
	if len(s.ListJobs()) != 1 {
		t.Fatalf("active execution must not unschedule the test")
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	lister := &memLister{}
	lister.set(scheduledTest("vol_001_test", true, 3600))
	o, _ := newTestOrchestrator(&stubConnector{rows: countRows(500)}, &recordingQueue{})
	s := NewScheduler(lister, o, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.ListJobs()) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("run did not sync jobs")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if len(s.ListJobs()) != 0 {
		t.Fatalf("jobs must be stopped with the scheduler")
	}
}
