package checks

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	dbconnector "pipeline-validation"
)

var (
	ErrValidation = errors.New("validation failed")
	idRegex       = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

type ValidationError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details"`
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Problem)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func ValidateTest(t Test) error {
	var details []ErrorDetail
	if !idRegex.MatchString(t.ID) {
		details = append(details, ErrorDetail{Field: "test_id", Problem: "invalid", Hint: "Use letters, digits, '_', '-' or '.'"})
	}
	if strings.TrimSpace(t.Name) == "" {
		details = append(details, ErrorDetail{Field: "name", Problem: "missing"})
	}
	if !t.Type.Valid() {
		details = append(details, ErrorDetail{Field: "test_type", Problem: "unsupported", Hint: "Use volume, anomaly or yoy"})
	}
	if strings.TrimSpace(t.Query) == "" {
		details = append(details, ErrorDetail{Field: "query", Problem: "missing"})
	}
	if !t.Severity.Valid() {
		details = append(details, ErrorDetail{Field: "severity", Problem: "invalid", Hint: "Use low, medium, high or critical"})
	}
	if strings.TrimSpace(t.ConnectionID) == "" {
		details = append(details, ErrorDetail{Field: "connection_id", Problem: "missing"})
	}
	details = append(details, validateParameters(t.Type, t.Parameters)...)
	if len(details) > 0 {
		return &ValidationError{Code: "TEST_INVALID", Message: "test definition failed validation", Details: details}
	}
	return nil
}

func validateParameters(testType TestType, params Parameters) []ErrorDetail {
	var details []ErrorDetail
	check := func(key string, err error) {
		if err != nil {
			details = append(details, ErrorDetail{Field: "parameters." + key, Problem: "invalid", Hint: err.Error()})
		}
	}
	numeric := func(keys ...string) {
		for _, key := range keys {
			_, _, err := params.Float(key)
			check(key, err)
		}
	}
	text := func(keys ...string) {
		for _, key := range keys {
			_, err := params.String(key)
			check(key, err)
		}
	}
	dates := func(keys ...string) {
		for _, key := range keys {
			_, _, err := params.Date(key)
			check(key, err)
		}
	}
	_, _, err := ScheduleInterval(params)
	check(ParamScheduleInterval, err)
	switch testType {
	case TypeVolume:
		numeric("anomaly_threshold_min")
		text("count_column")
		_, err = params.Bool("alert_on_empty")
		check("alert_on_empty", err)
	case TypeAnomaly:
		numeric("z_threshold", "min_threshold")
		text("date_column", "count_column")
		dates("as_of", "min_date")
	case TypeYoY:
		numeric("yoy_threshold_pct", "min_threshold")
		text("date_column", "count_column")
		dates("as_of", "min_date")
	}
	return details
}

func ValidateConnection(c Connection) error {
	var details []ErrorDetail
	if !idRegex.MatchString(c.ID) {
		details = append(details, ErrorDetail{Field: "connection_id", Problem: "invalid", Hint: "Use letters, digits, '_', '-' or '.'"})
	}
	engine := dbconnector.NormalizeEngine(c.Engine)
	if engine == "" {
		details = append(details, ErrorDetail{Field: "db_type", Problem: "unsupported", Hint: "Use postgres, sqlserver, mysql or sqlite"})
	}
	if engine != dbconnector.EngineSQLite && strings.TrimSpace(c.Host) == "" {
		details = append(details, ErrorDetail{Field: "host", Problem: "missing"})
	}
	if strings.TrimSpace(c.Database) == "" {
		details = append(details, ErrorDetail{Field: "database_name", Problem: "missing"})
	}
	if c.Port < 0 || c.Port > 65535 {
		details = append(details, ErrorDetail{Field: "port", Problem: "out of range"})
	}
	if len(details) > 0 {
		return &ValidationError{Code: "CONNECTION_INVALID", Message: "connection failed validation", Details: details}
	}
	return nil
}
