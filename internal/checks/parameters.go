package checks

import (
	"fmt"
	"strings"
	"time"

	dbconnector "pipeline-validation"
)

// ParamScheduleInterval holds the period, in seconds, between scheduled runs
// of a test. Tests without it only run on demand.
const ParamScheduleInterval = "schedule_interval_seconds"

const (
	MinScheduleIntervalSeconds = 5
	MaxScheduleIntervalSeconds = 7 * 24 * 3600
)

// Parameters holds the type specific options of a test as decoded from JSON.
type Parameters map[string]any

// Float returns the numeric value under key. A missing key or an explicit
// null reports ok=false; a non-numeric value is an error.
func (p Parameters) Float(key string) (value float64, ok bool, err error) {
	raw, present := p[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	f, isNum := dbconnector.Numeric(raw)
	if !isNum {
		return 0, false, fmt.Errorf("parameter %s must be a number, got %T", key, raw)
	}
	return f, true, nil
}

func (p Parameters) FloatOr(key string, fallback float64) (float64, error) {
	f, ok, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	return f, nil
}

func (p Parameters) Bool(key string) (bool, error) {
	raw, present := p[key]
	if !present || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %s must be a boolean, got %T", key, raw)
	}
	return b, nil
}

func (p Parameters) String(key string) (string, error) {
	raw, present := p[key]
	if !present || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, raw)
	}
	return strings.TrimSpace(s), nil
}

// Date parses a date token parameter; ok=false when it is absent.
func (p Parameters) Date(key string) (time.Time, bool, error) {
	s, err := p.String(key)
	if err != nil || s == "" {
		return time.Time{}, false, err
	}
	d, err := ParseDate(s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parameter %s: %w", key, err)
	}
	return d, true, nil
}

// ScheduleInterval returns the run period configured for the test. A missing
// or zero value reports ok=false.
func ScheduleInterval(p Parameters) (interval time.Duration, ok bool, err error) {
	seconds, present, err := p.Float(ParamScheduleInterval)
	if err != nil || !present || seconds == 0 {
		return 0, false, err
	}
	if seconds < MinScheduleIntervalSeconds || seconds > MaxScheduleIntervalSeconds {
		return 0, false, fmt.Errorf("parameter %s must be 0 or between %d and %d", ParamScheduleInterval, MinScheduleIntervalSeconds, MaxScheduleIntervalSeconds)
	}
	return time.Duration(seconds * float64(time.Second)), true, nil
}
