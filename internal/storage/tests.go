package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pipeline-validation/internal/checks"
)

const testColumns = `test_id, name, description, test_type, query, parameters, enabled, severity, connection_id, tags, created_at, updated_at`

type TestFilter struct {
	Enabled *bool
	Type    checks.TestType
}

func scanTest(row pgx.Row) (checks.Test, error) {
	var (
		t      checks.Test
		params []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Type, &t.Query, &params, &t.Enabled, &t.Severity, &t.ConnectionID, &t.Tags, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return checks.Test{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Parameters); err != nil {
			return checks.Test{}, fmt.Errorf("decode parameters of %s: %w", t.ID, err)
		}
	}
	if t.Parameters == nil {
		t.Parameters = checks.Parameters{}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t, nil
}

func (r *Repository) CreateTest(ctx context.Context, t checks.Test) (checks.Test, error) {
	params, err := jsonArg(t.Parameters)
	if err != nil {
		return checks.Test{}, err
	}
	if params == nil {
		params = []byte("{}")
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err = r.Store.Pool.Exec(ctx, `
		INSERT INTO tests (`+testColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Name, t.Description, t.Type, t.Query, params, t.Enabled, t.Severity, t.ConnectionID, t.Tags, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return checks.Test{}, fmt.Errorf("test %s %w", t.ID, ErrConflict)
	}
	if err != nil {
		return checks.Test{}, err
	}
	return t, nil
}

func (r *Repository) GetTest(ctx context.Context, id string) (checks.Test, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+testColumns+` FROM tests WHERE test_id=$1 AND deleted_at IS NULL`, id)
	t, err := scanTest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return checks.Test{}, fmt.Errorf("test %s %w", id, ErrNotFound)
	}
	return t, err
}

func (r *Repository) ListTests(ctx context.Context, filter TestFilter) ([]checks.Test, error) {
	clauses := []string{"deleted_at IS NULL"}
	args := []any{}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		clauses = append(clauses, fmt.Sprintf("enabled=$%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, fmt.Sprintf("test_type=$%d", len(args)))
	}
	rows, err := r.Store.Pool.Query(ctx, `SELECT `+testColumns+` FROM tests WHERE `+strings.Join(clauses, " AND ")+` ORDER BY test_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []checks.Test{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// UpdateTest overwrites the mutable fields of an active test.
func (r *Repository) UpdateTest(ctx context.Context, t checks.Test) (checks.Test, error) {
	params, err := jsonArg(t.Parameters)
	if err != nil {
		return checks.Test{}, err
	}
	if params == nil {
		params = []byte("{}")
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.UpdatedAt = time.Now().UTC()
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE tests
		SET name=$1, description=$2, test_type=$3, query=$4, parameters=$5, enabled=$6, severity=$7, connection_id=$8, tags=$9, updated_at=$10
		WHERE test_id=$11 AND deleted_at IS NULL`,
		t.Name, t.Description, t.Type, t.Query, params, t.Enabled, t.Severity, t.ConnectionID, t.Tags, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return checks.Test{}, err
	}
	if tag.RowsAffected() == 0 {
		return checks.Test{}, fmt.Errorf("test %s %w", t.ID, ErrNotFound)
	}
	return t, nil
}

func (r *Repository) DeleteTest(ctx context.Context, id string) error {
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE tests SET deleted_at=now(), updated_at=now() WHERE test_id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("test %s %w", id, ErrNotFound)
	}
	return nil
}

// TestSeverities maps every test id, deleted ones included, to its severity.
func (r *Repository) TestSeverities(ctx context.Context) (map[string]checks.Severity, error) {
	rows, err := r.Store.Pool.Query(ctx, `SELECT test_id, severity FROM tests`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]checks.Severity{}
	for rows.Next() {
		var id string
		var severity checks.Severity
		if err := rows.Scan(&id, &severity); err != nil {
			return nil, err
		}
		out[id] = severity
	}
	return out, rows.Err()
}
