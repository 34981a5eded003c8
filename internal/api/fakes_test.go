package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/dashboard"
	"pipeline-validation/internal/orchestrator"
	"pipeline-validation/internal/storage"
)

type memRepo struct {
	mu          sync.Mutex
	tests       map[string]checks.Test
	deleted     map[string]bool
	connections map[string]checks.Connection
	executions  map[string]checks.Execution
	lastFilter  storage.ExecutionFilter
}

func newMemRepo() *memRepo {
	return &memRepo{
		tests:       map[string]checks.Test{},
		deleted:     map[string]bool{},
		connections: map[string]checks.Connection{},
		executions:  map[string]checks.Execution{},
	}
}

func (m *memRepo) CreateTest(ctx context.Context, t checks.Test) (checks.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[t.ID]; ok {
		return checks.Test{}, fmt.Errorf("test %s %w", t.ID, storage.ErrConflict)
	}
	t.CreatedAt = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	t.UpdatedAt = t.CreatedAt
	m.tests[t.ID] = t
	return t, nil
}

func (m *memRepo) GetTest(ctx context.Context, id string) (checks.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok || m.deleted[id] {
		return checks.Test{}, fmt.Errorf("test %s %w", id, storage.ErrNotFound)
	}
	return t, nil
}

func (m *memRepo) ListTests(ctx context.Context, filter storage.TestFilter) ([]checks.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []checks.Test{}
	for id, t := range m.tests {
		if m.deleted[id] {
			continue
		}
		if filter.Enabled != nil && t.Enabled != *filter.Enabled {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) UpdateTest(ctx context.Context, t checks.Test) (checks.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[t.ID]; !ok || m.deleted[t.ID] {
		return checks.Test{}, fmt.Errorf("test %s %w", t.ID, storage.ErrNotFound)
	}
	m.tests[t.ID] = t
	return t, nil
}

func (m *memRepo) DeleteTest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[id]; !ok || m.deleted[id] {
		return fmt.Errorf("test %s %w", id, storage.ErrNotFound)
	}
	m.deleted[id] = true
	return nil
}

func (m *memRepo) CreateConnection(ctx context.Context, c checks.Connection) (checks.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[c.ID]; ok {
		return checks.Connection{}, fmt.Errorf("connection %s %w", c.ID, storage.ErrConflict)
	}
	m.connections[c.ID] = c
	return c, nil
}

func (m *memRepo) GetConnection(ctx context.Context, id string) (checks.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return checks.Connection{}, fmt.Errorf("connection %s %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (m *memRepo) ListExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]checks.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	out := []checks.Execution{}
	for _, e := range m.executions {
		if filter.TestID != "" && e.TestID != filter.TestID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memRepo) GetExecution(ctx context.Context, id string) (checks.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return checks.Execution{}, fmt.Errorf("execution %s %w", id, storage.ErrNotFound)
	}
	return e, nil
}

type fakeRunner struct {
	repo   *memRepo
	result orchestrator.RunResult
	err    error
	waits  []bool
}

func (f *fakeRunner) Run(ctx context.Context, testID string, wait bool) (orchestrator.RunResult, error) {
	f.waits = append(f.waits, wait)
	if _, err := f.repo.GetTest(ctx, testID); err != nil {
		return orchestrator.RunResult{}, err
	}
	if f.err != nil {
		return orchestrator.RunResult{}, f.err
	}
	res := f.result
	res.TestID = testID
	return res, nil
}

type fakeSummary struct {
	summary dashboard.Summary
	err     error
}

func (f fakeSummary) Summary(ctx context.Context, since time.Time) (dashboard.Summary, error) {
	if f.err != nil {
		return dashboard.Summary{}, fmt.Errorf("%w: %v", dashboard.ErrSummaryUnavailable, f.err)
	}
	return f.summary, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

var errStoreDown = errors.New("connection refused")
