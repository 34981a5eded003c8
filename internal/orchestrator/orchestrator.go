package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/executor"
	"pipeline-validation/internal/storage"
)

const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	completionTimeout   = 10 * time.Second
)

var ErrAlreadyActive = fmt.Errorf("%w: test already has an active execution", storage.ErrConflict)

type TestStore interface {
	GetTest(ctx context.Context, id string) (checks.Test, error)
}

type ConnectionStore interface {
	GetConnection(ctx context.Context, id string) (checks.Connection, error)
}

// ResultStore owns execution records. MarkRunning and CompleteExecution are
// conditional and report whether the transition was applied.
type ResultStore interface {
	CreateExecution(ctx context.Context, exec checks.Execution) error
	GetExecution(ctx context.Context, id string) (checks.Execution, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	CompleteExecution(ctx context.Context, id string, c checks.Completion) (bool, error)
	HasActiveExecution(ctx context.Context, testID string) (bool, error)
	ListStale(ctx context.Context, before time.Time) ([]checks.Execution, error)
}

// Task is the only payload dispatched to workers; test and connection are
// resolved again when the task runs.
type Task struct {
	ExecutionID string `json:"execution_id"`
	TestID      string `json:"test_id"`
}

type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}

type ConnectorFactory func(cfg dbconnector.ConnectionConfig) (dbconnector.Connector, error)

type ExecutorFactory func(testType checks.TestType) (executor.Executor, error)

type RunResult struct {
	ExecutionID string            `json:"execution_id"`
	TaskID      string            `json:"task_id"`
	TestID      string            `json:"test_id"`
	Status      checks.Status     `json:"status"`
	TimedOut    bool              `json:"timed_out,omitempty"`
	Execution   *checks.Execution `json:"execution,omitempty"`
}

type Orchestrator struct {
	Tests        TestStore
	Connections  ConnectionStore
	Results      ResultStore
	Queue        Queue
	Connectors   ConnectorFactory
	Executors    ExecutorFactory
	Logger       *slog.Logger
	WaitTimeout  time.Duration
	PollInterval time.Duration
	SingleFlight bool
	Now          func() time.Time

	locksMu sync.Mutex
	locks   map[string]*testLock
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Run records a queued execution for the test and dispatches it. With wait
// set it polls the results store until the execution is terminal or the
// wait timeout passes; the task keeps running after a timeout.
func (o *Orchestrator) Run(ctx context.Context, testID string, wait bool) (RunResult, error) {
	if _, err := o.Tests.GetTest(ctx, testID); err != nil {
		return RunResult{}, err
	}
	exec, err := o.createExecution(ctx, testID)
	if err != nil {
		return RunResult{}, err
	}
	task := Task{ExecutionID: exec.ID, TestID: testID}
	if err := o.Queue.Enqueue(ctx, task); err != nil {
		o.complete(ctx, exec.ID, exec.StartedAt, executor.Outcome{
			Status:       checks.StatusError,
			ErrorMessage: "dispatch failed: " + err.Error(),
		})
		return RunResult{}, fmt.Errorf("dispatch execution %s: %w", exec.ID, err)
	}
	o.logger().Info("execution queued", slog.String("execution_id", exec.ID), slog.String("test_id", testID))
	result := RunResult{ExecutionID: exec.ID, TaskID: exec.ID, TestID: testID, Status: checks.StatusQueued}
	if !wait {
		return result, nil
	}
	return o.waitFor(ctx, result)
}

func (o *Orchestrator) createExecution(ctx context.Context, testID string) (checks.Execution, error) {
	if o.SingleFlight {
		unlock := o.lock(testID)
		defer unlock()
		active, err := o.Results.HasActiveExecution(ctx, testID)
		if err != nil {
			return checks.Execution{}, err
		}
		if active {
			return checks.Execution{}, fmt.Errorf("%w: %s", ErrAlreadyActive, testID)
		}
	}
	exec := checks.Execution{
		ID:        uuid.NewString(),
		TestID:    testID,
		Status:    checks.StatusQueued,
		StartedAt: o.now(),
	}
	if err := o.Results.CreateExecution(ctx, exec); err != nil {
		return checks.Execution{}, err
	}
	return exec, nil
}

// testLock is a per-test mutex shared by concurrent Run calls. It is dropped
// from the map once the last holder or waiter releases it.
type testLock struct {
	mu   sync.Mutex
	refs int
}

func (o *Orchestrator) lock(testID string) func() {
	o.locksMu.Lock()
	if o.locks == nil {
		o.locks = map[string]*testLock{}
	}
	l, ok := o.locks[testID]
	if !ok {
		l = &testLock{}
		o.locks[testID] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, testID)
		}
		o.locksMu.Unlock()
	}
}

func (o *Orchestrator) heldLocks() int {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	return len(o.locks)
}

func (o *Orchestrator) waitFor(ctx context.Context, result RunResult) (RunResult, error) {
	timeout := o.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	interval := o.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		exec, err := o.Results.GetExecution(ctx, result.ExecutionID)
		if err != nil {
			return RunResult{}, err
		}
		if exec.Status.Terminal() {
			result.Status = exec.Status
			result.Execution = &exec
			return result, nil
		}
		select {
		case <-ctx.Done():
			return RunResult{}, ctx.Err()
		case <-deadline.C:
			result.Status = checks.StatusRunning
			result.TimedOut = true
			return result, nil
		case <-ticker.C:
		}
	}
}

// Execute runs one dispatched task to a terminal status. It returns an
// error only when the results store could not be updated, so the queue can
// redeliver the task.
func (o *Orchestrator) Execute(ctx context.Context, task Task) error {
	log := o.logger().With(slog.String("execution_id", task.ExecutionID), slog.String("test_id", task.TestID))
	startedAt := o.now()
	applied, err := o.Results.MarkRunning(ctx, task.ExecutionID, startedAt)
	if err != nil {
		return fmt.Errorf("mark execution %s running: %w", task.ExecutionID, err)
	}
	if !applied {
		log.Warn("execution is no longer queued, skipping task")
		return nil
	}
	outcome := o.evaluate(ctx, task)
	if !o.complete(ctx, task.ExecutionID, startedAt, outcome) {
		return fmt.Errorf("execution %s could not be completed", task.ExecutionID)
	}
	log.Info("execution finished", slog.String("status", string(outcome.Status)), slog.Int("rows_processed", outcome.RowsProcessed))
	return nil
}

func (o *Orchestrator) evaluate(ctx context.Context, task Task) (outcome executor.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = executor.Outcome{Status: checks.StatusError, ErrorMessage: fmt.Sprintf("executor panic: %v", r)}
		}
	}()
	test, err := o.Tests.GetTest(ctx, task.TestID)
	if err != nil {
		return failure(fmt.Errorf("resolve test %s: %w", task.TestID, err))
	}
	conn, err := o.Connections.GetConnection(ctx, test.ConnectionID)
	if err != nil {
		return failure(fmt.Errorf("resolve connection %s: %w", test.ConnectionID, err))
	}
	exec, err := o.Executors(test.Type)
	if err != nil {
		return failure(err)
	}
	connector, err := o.Connectors(conn.Config())
	if err != nil {
		return failure(err)
	}
	return exec.Execute(ctx, test, connector)
}

func failure(err error) executor.Outcome {
	return executor.Outcome{Status: checks.StatusError, ErrorMessage: err.Error()}
}

// complete writes the terminal record on a context detached from the job
// deadline.
func (o *Orchestrator) complete(ctx context.Context, id string, startedAt time.Time, outcome executor.Outcome) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
	defer cancel()
	completedAt := o.now()
	applied, err := o.Results.CompleteExecution(ctx, id, checks.Completion{
		Status:         outcome.Status,
		CompletedAt:    completedAt,
		DurationMS:     completedAt.Sub(startedAt).Milliseconds(),
		ExpectedValues: outcome.Expected,
		ActualValues:   outcome.Actual,
		ResultSummary:  outcome.Summary,
		RowsProcessed:  outcome.RowsProcessed,
		ErrorMessage:   outcome.ErrorMessage,
	})
	if err != nil {
		o.logger().Error("failed to complete execution", slog.String("execution_id", id), slog.String("error", err.Error()))
		return false
	}
	if !applied {
		o.logger().Warn("execution already terminal", slog.String("execution_id", id))
	}
	return true
}

// IsNotFound reports whether err came from a missing test, connection or
// execution.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
