package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/storage"
)

type memTests map[string]checks.Test

func (m memTests) GetTest(ctx context.Context, id string) (checks.Test, error) {
	t, ok := m[id]
	if !ok {
		return checks.Test{}, fmt.Errorf("test %s %w", id, storage.ErrNotFound)
	}
	return t, nil
}

type memConnections map[string]checks.Connection

func (m memConnections) GetConnection(ctx context.Context, id string) (checks.Connection, error) {
	c, ok := m[id]
	if !ok {
		return checks.Connection{}, fmt.Errorf("connection %s %w", id, storage.ErrNotFound)
	}
	return c, nil
}

type memResults struct {
	mu      sync.Mutex
	records map[string]checks.Execution
	failGet error
}

func newMemResults() *memResults {
	return &memResults{records: map[string]checks.Execution{}}
}

func (m *memResults) CreateExecution(ctx context.Context, e checks.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[e.ID]; ok {
		return storage.ErrConflict
	}
	m.records[e.ID] = e
	return nil
}

func (m *memResults) GetExecution(ctx context.Context, id string) (checks.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return checks.Execution{}, m.failGet
	}
	e, ok := m.records[id]
	if !ok {
		return checks.Execution{}, storage.ErrNotFound
	}
	return e, nil
}

func (m *memResults) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[id]
	if !ok || e.Status != checks.StatusQueued {
		return false, nil
	}
	e.Status = checks.StatusRunning
	e.StartedAt = startedAt
	m.records[id] = e
	return true, nil
}

func (m *memResults) CompleteExecution(ctx context.Context, id string, c checks.Completion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[id]
	if !ok || e.Status.Terminal() {
		return false, nil
	}
	completed := c.CompletedAt
	duration := c.DurationMS
	rows := c.RowsProcessed
	e.Status = c.Status
	e.CompletedAt = &completed
	e.DurationMS = &duration
	e.RowsProcessed = &rows
	e.ActualValues = c.ActualValues
	e.ExpectedValues = c.ExpectedValues
	e.ResultSummary = c.ResultSummary
	e.ErrorMessage = c.ErrorMessage
	m.records[id] = e
	return true, nil
}

func (m *memResults) HasActiveExecution(ctx context.Context, testID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.records {
		if e.TestID == testID && !e.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memResults) ListStale(ctx context.Context, before time.Time) ([]checks.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []checks.Execution{}
	for _, e := range m.records {
		if !e.Status.Terminal() && e.StartedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memResults) get(id string) checks.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// recordingQueue keeps tasks instead of running them.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks...)
}

type stubConnector struct {
	rows       []dbconnector.Row
	connectErr error
	block      chan struct{}
}

func (s *stubConnector) Connect(ctx context.Context) error {
	return s.connectErr
}

func (s *stubConnector) ExecuteQuery(ctx context.Context, query string) ([]dbconnector.Row, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, &dbconnector.QueryError{Engine: "stub", Query: query, Err: ctx.Err()}
		}
	}
	return s.rows, nil
}

func (s *stubConnector) Close() error {
	return nil
}

// memLister serves ListTests from a mutable slice.
type memLister struct {
	mu    sync.Mutex
	tests []checks.Test
	err   error
}

func (m *memLister) ListTests(ctx context.Context, filter storage.TestFilter) ([]checks.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []checks.Test{}
	for _, t := range m.tests {
		if filter.Enabled != nil && t.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memLister) set(tests ...checks.Test) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests = tests
}
