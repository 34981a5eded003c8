package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pipeline-validation/internal/checks"
)

const (
	executionColumns    = `execution_id, test_id, status, started_at, completed_at, duration_ms, expected_values, actual_values, result_summary, rows_processed, error_message`
	DefaultListLimit    = 50
	MaxListLimit        = 1000
	activeStatusesQuery = `status IN ('queued','running')`
)

type ExecutionFilter struct {
	TestID string
	Status checks.Status
	Limit  int
}

func scanExecution(row pgx.Row) (checks.Execution, error) {
	var (
		e                         checks.Execution
		expected, actual, summary []byte
		errorMessage              *string
	)
	if err := row.Scan(&e.ID, &e.TestID, &e.Status, &e.StartedAt, &e.CompletedAt, &e.DurationMS, &expected, &actual, &summary, &e.RowsProcessed, &errorMessage); err != nil {
		return checks.Execution{}, err
	}
	var err error
	if e.ExpectedValues, err = jsonValue(expected); err != nil {
		return checks.Execution{}, err
	}
	if e.ActualValues, err = jsonValue(actual); err != nil {
		return checks.Execution{}, err
	}
	if e.ResultSummary, err = jsonValue(summary); err != nil {
		return checks.Execution{}, err
	}
	if errorMessage != nil {
		e.ErrorMessage = *errorMessage
	}
	return e, nil
}

func (r *Repository) CreateExecution(ctx context.Context, e checks.Execution) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO executions (execution_id, test_id, status, started_at)
		VALUES ($1,$2,$3,$4)`,
		e.ID, e.TestID, e.Status, e.StartedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("execution %s %w", e.ID, ErrConflict)
	}
	return err
}

func (r *Repository) GetExecution(ctx context.Context, id string) (checks.Execution, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE execution_id::text=$1`, id)
	e, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return checks.Execution{}, fmt.Errorf("execution %s %w", id, ErrNotFound)
	}
	return e, err
}

// ListExecutions returns the newest executions first.
func (r *Repository) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]checks.Execution, error) {
	clauses := []string{}
	args := []any{}
	if filter.TestID != "" {
		args = append(args, filter.TestID)
		clauses = append(clauses, fmt.Sprintf("test_id=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	args = append(args, limit)
	query := `SELECT ` + executionColumns + ` FROM executions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))
	return r.queryExecutions(ctx, query, args...)
}

// ListSince returns every execution started at or after since; a zero since
// returns the whole history.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]checks.Execution, error) {
	if since.IsZero() {
		return r.queryExecutions(ctx, `SELECT `+executionColumns+` FROM executions ORDER BY started_at`)
	}
	return r.queryExecutions(ctx, `SELECT `+executionColumns+` FROM executions WHERE started_at >= $1 ORDER BY started_at`, since)
}

// ListStale returns queued or running executions started before the cutoff.
func (r *Repository) ListStale(ctx context.Context, before time.Time) ([]checks.Execution, error) {
	return r.queryExecutions(ctx, `SELECT `+executionColumns+` FROM executions WHERE `+activeStatusesQuery+` AND started_at < $1 ORDER BY started_at`, before)
}

func (r *Repository) queryExecutions(ctx context.Context, query string, args ...any) ([]checks.Execution, error) {
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []checks.Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (r *Repository) HasActiveExecution(ctx context.Context, testID string) (bool, error) {
	var active bool
	err := r.Store.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM executions WHERE test_id=$1 AND `+activeStatusesQuery+`)`, testID).Scan(&active)
	return active, err
}

// MarkRunning moves a queued execution to running. It reports false when
// the execution is no longer queued.
func (r *Repository) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE executions SET status='running', started_at=$1
		WHERE execution_id::text=$2 AND status='queued'`, startedAt, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteExecution writes the terminal status of a queued or running
// execution. It reports false when the execution was already terminal.
func (r *Repository) CompleteExecution(ctx context.Context, id string, c checks.Completion) (bool, error) {
	if !c.Status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", c.Status)
	}
	expected, err := jsonArg(c.ExpectedValues)
	if err != nil {
		return false, err
	}
	actual, err := jsonArg(c.ActualValues)
	if err != nil {
		return false, err
	}
	summary, err := jsonArg(c.ResultSummary)
	if err != nil {
		return false, err
	}
	var errorMessage *string
	if c.ErrorMessage != "" {
		errorMessage = &c.ErrorMessage
	}
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE executions
		SET status=$1, completed_at=$2, duration_ms=$3, expected_values=$4, actual_values=$5, result_summary=$6, rows_processed=$7, error_message=$8
		WHERE execution_id::text=$9 AND `+activeStatusesQuery,
		c.Status, c.CompletedAt, c.DurationMS, expected, actual, summary, c.RowsProcessed, errorMessage, id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
