package executor

import (
	"context"
	"time"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
)

const (
	DefaultYoYThresholdPct = -50.0

	ReasonBelowMinimum = "Below minimum threshold"
	ReasonYoYDecrease  = "Year-over-year decrease"
)

// matchOffsets is the search order around the date one year earlier:
// smaller distances first, earlier dates before later ones.
var matchOffsets = []int{0, -1, 1, -2, 2, -3, 3}

type YoYOptions struct {
	ThresholdPct float64
	MinThreshold float64
	MinDate      time.Time
	AsOf         time.Time
}

type YoYFinding struct {
	Date       string   `json:"date"`
	Weekday    string   `json:"weekday"`
	Count      int64    `json:"count"`
	PriorDate  string   `json:"prior_date,omitempty"`
	PriorCount *int64   `json:"prior_count,omitempty"`
	YoYChange  *int64   `json:"yoy_change,omitempty"`
	YoYPct     *float64 `json:"yoy_pct,omitempty"`
	Reason     string   `json:"reason"`
}

// PriorYearMatch finds the observation one year before date that falls on
// the same weekday, searching up to three days either side.
func PriorYearMatch(history map[time.Time]int64, date time.Time) (time.Time, int64, bool) {
	target := date.AddDate(-1, 0, 0)
	for _, offset := range matchOffsets {
		candidate := target.AddDate(0, 0, offset)
		if candidate.Weekday() != date.Weekday() {
			continue
		}
		if count, ok := history[candidate]; ok {
			return candidate, count, true
		}
	}
	return time.Time{}, 0, false
}

// CompareYearOverYear flags observations that dropped against the prior
// year or fall under the absolute floor.
func CompareYearOverYear(series []Observation, opts YoYOptions) []YoYFinding {
	history := make(map[time.Time]int64, len(series))
	for _, obs := range series {
		history[obs.Date] = obs.Count
	}
	sorted := append([]Observation(nil), series...)
	sortSeries(sorted)
	findings := []YoYFinding{}
	for _, obs := range sorted {
		if !opts.MinDate.IsZero() && obs.Date.Before(opts.MinDate) {
			continue
		}
		if !opts.AsOf.IsZero() && !obs.Date.Before(opts.AsOf) {
			continue
		}
		finding := YoYFinding{
			Date:    checks.FormatDate(obs.Date),
			Weekday: obs.Date.Weekday().String(),
			Count:   obs.Count,
		}
		decreased := false
		if priorDate, prior, ok := PriorYearMatch(history, obs.Date); ok {
			finding.PriorDate = checks.FormatDate(priorDate)
			finding.PriorCount = &prior
			change := obs.Count - prior
			finding.YoYChange = &change
			if prior != 0 {
				pct := float64(change) * 100 / float64(prior)
				finding.YoYPct = &pct
				decreased = pct <= opts.ThresholdPct
			}
		}
		switch {
		case float64(obs.Count) < opts.MinThreshold:
			finding.Reason = ReasonBelowMinimum
		case decreased:
			finding.Reason = ReasonYoYDecrease
		default:
			continue
		}
		findings = append(findings, finding)
	}
	return findings
}

type YoYExecutor struct {
	Now func() time.Time
}

func (e YoYExecutor) Execute(ctx context.Context, test checks.Test, conn dbconnector.Connector) Outcome {
	opts, dateColumn, countColumn, err := e.options(test.Parameters)
	if err != nil {
		return errorOutcome(err)
	}
	rows, err := dbconnector.Query(ctx, conn, test.Query)
	if err != nil {
		return errorOutcome(err)
	}
	if len(rows) == 0 {
		return errorMessage(msgNoResults, 0)
	}
	series, err := SeriesFromRows(rows, dateColumn, countColumn)
	if err != nil {
		return errorMessage(err.Error(), len(rows))
	}
	findings := CompareYearOverYear(series, opts)
	status := checks.StatusPassed
	if len(findings) > 0 {
		status = checks.StatusFailed
	}
	var minDate any
	if !opts.MinDate.IsZero() {
		minDate = checks.FormatDate(opts.MinDate)
	}
	return Outcome{
		Status: status,
		Summary: map[string]any{
			"flagged_count": len(findings),
			"flagged":       findings,
			"is_anomaly":    len(findings) > 0,
		},
		Actual: map[string]any{
			"observations": len(series),
			"latest_count": latestCount(series, opts.AsOf),
		},
		Expected: map[string]any{
			"yoy_threshold_pct": opts.ThresholdPct,
			"min_threshold":     opts.MinThreshold,
			"min_date":          minDate,
		},
		RowsProcessed: len(rows),
	}
}

func (e YoYExecutor) options(params checks.Parameters) (YoYOptions, string, string, error) {
	opts := YoYOptions{AsOf: checks.Day(now(e.Now))}
	var err error
	if opts.ThresholdPct, err = params.FloatOr("yoy_threshold_pct", DefaultYoYThresholdPct); err != nil {
		return opts, "", "", err
	}
	if opts.MinThreshold, err = params.FloatOr("min_threshold", DefaultMinThreshold); err != nil {
		return opts, "", "", err
	}
	if err := applyDates(params, &opts.AsOf, &opts.MinDate); err != nil {
		return opts, "", "", err
	}
	dateColumn, countColumn, err := seriesColumns(params)
	return opts, dateColumn, countColumn, err
}
