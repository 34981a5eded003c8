package executor

import (
	"context"
	"errors"
	"fmt"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
)

var ErrUnsupportedTestType = errors.New("unsupported test type")

const msgNoResults = "Query returned no results"

// Executor evaluates one test type against a freshly acquired connector.
// Business rule violations are reported as a failed outcome; only
// infrastructure faults produce an error outcome.
type Executor interface {
	Execute(ctx context.Context, test checks.Test, conn dbconnector.Connector) Outcome
}

type Outcome struct {
	Status        checks.Status  `json:"status"`
	Summary       map[string]any `json:"result_summary"`
	Actual        map[string]any `json:"actual_values"`
	Expected      map[string]any `json:"expected_values"`
	RowsProcessed int            `json:"rows_processed"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

func errorOutcome(err error) Outcome {
	return Outcome{Status: checks.StatusError, ErrorMessage: err.Error()}
}

func errorMessage(msg string, rows int) Outcome {
	return Outcome{Status: checks.StatusError, ErrorMessage: msg, RowsProcessed: rows}
}

// For returns the executor registered for a test type.
func For(testType checks.TestType) (Executor, error) {
	switch testType {
	case checks.TypeVolume:
		return VolumeExecutor{}, nil
	case checks.TypeAnomaly:
		return AnomalyExecutor{}, nil
	case checks.TypeYoY:
		return YoYExecutor{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedTestType, testType)
}
