package checks

import "time"

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusError:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	return s == StatusQueued || s == StatusRunning || s.Terminal()
}

// Execution is one run of a test. It is created queued, moves to running
// and then to exactly one terminal status, after which it never changes.
type Execution struct {
	ID             string         `json:"execution_id"`
	TestID         string         `json:"test_id"`
	Status         Status         `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	DurationMS     *int64         `json:"duration_ms"`
	ExpectedValues map[string]any `json:"expected_values"`
	ActualValues   map[string]any `json:"actual_values"`
	ResultSummary  map[string]any `json:"result_summary"`
	RowsProcessed  *int           `json:"rows_processed"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// Completion carries the terminal fields written when an execution finishes.
type Completion struct {
	Status         Status
	CompletedAt    time.Time
	DurationMS     int64
	ExpectedValues map[string]any
	ActualValues   map[string]any
	ResultSummary  map[string]any
	RowsProcessed  int
	ErrorMessage   string
}
