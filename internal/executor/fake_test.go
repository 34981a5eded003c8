package executor

import (
	"context"

	dbconnector "pipeline-validation"
)

type fakeConnector struct {
	rows       []dbconnector.Row
	connectErr error
	queryErr   error
	queries    []string
	closed     bool
}

func (f *fakeConnector) Connect(ctx context.Context) error {
	return f.connectErr
}

func (f *fakeConnector) ExecuteQuery(ctx context.Context, query string) ([]dbconnector.Row, error) {
	f.queries = append(f.queries, query)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeConnector) Close() error {
	f.closed = true
	return nil
}

func countRow(v any) []dbconnector.Row {
	return []dbconnector.Row{{{Name: "count", Value: v}}}
}
