package executor

import (
	"context"
	"time"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
)

const (
	DefaultZThreshold   = -2.5
	DefaultMinThreshold = 5000.0
)

// Baseline is the day-of-week profile a count is compared against.
type Baseline struct {
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stdev"`
	Samples int     `json:"samples"`
}

type Anomaly struct {
	Date     string          `json:"date"`
	Weekday  string          `json:"weekday"`
	Count    int64           `json:"count"`
	Expected float64         `json:"expected"`
	ZScore   float64         `json:"z_score"`
	PctDiff  float64         `json:"pct_diff"`
	Severity checks.Severity `json:"severity"`
}

type AnomalyOptions struct {
	ZThreshold   float64
	MinThreshold float64
	// AsOf excludes observations on or after this date.
	AsOf time.Time
	// MinDate, when set, limits which observations can be flagged. The
	// baselines always use the full history.
	MinDate time.Time
}

func DefaultAnomalyOptions(asOf time.Time) AnomalyOptions {
	return AnomalyOptions{ZThreshold: DefaultZThreshold, MinThreshold: DefaultMinThreshold, AsOf: checks.Day(asOf)}
}

// WeekdayBaselines groups the series by day of week.
func WeekdayBaselines(series []Observation) map[time.Weekday]Baseline {
	groups := map[time.Weekday][]float64{}
	for _, obs := range series {
		day := obs.Date.Weekday()
		groups[day] = append(groups[day], float64(obs.Count))
	}
	baselines := make(map[time.Weekday]Baseline, len(groups))
	for day, counts := range groups {
		baselines[day] = Baseline{
			Mean:    Mean(counts),
			StdDev:  StdDev(counts, false),
			Samples: len(counts),
		}
	}
	return baselines
}

// DetectAnomalies returns the low anomalies of the series in date order.
func DetectAnomalies(series []Observation, opts AnomalyOptions) ([]Anomaly, map[time.Weekday]Baseline) {
	baselines := WeekdayBaselines(series)
	sorted := append([]Observation(nil), series...)
	sortSeries(sorted)
	anomalies := []Anomaly{}
	for _, obs := range sorted {
		if !opts.AsOf.IsZero() && !obs.Date.Before(opts.AsOf) {
			continue
		}
		if !opts.MinDate.IsZero() && obs.Date.Before(opts.MinDate) {
			continue
		}
		base := baselines[obs.Date.Weekday()]
		count := float64(obs.Count)
		z := ZScore(count, base.Mean, base.StdDev)
		if z >= opts.ZThreshold && count >= opts.MinThreshold {
			continue
		}
		pct := PctDiff(count, base.Mean)
		anomalies = append(anomalies, Anomaly{
			Date:     checks.FormatDate(obs.Date),
			Weekday:  obs.Date.Weekday().String(),
			Count:    obs.Count,
			Expected: base.Mean,
			ZScore:   z,
			PctDiff:  pct,
			Severity: anomalySeverity(pct),
		})
	}
	return anomalies, baselines
}

func anomalySeverity(pctDiff float64) checks.Severity {
	switch {
	case pctDiff < -95:
		return checks.SeverityHigh
	case pctDiff < -85:
		return checks.SeverityMedium
	default:
		return checks.SeverityLow
	}
}

type AnomalyExecutor struct {
	Now func() time.Time
}

func (e AnomalyExecutor) Execute(ctx context.Context, test checks.Test, conn dbconnector.Connector) Outcome {
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
	anomalies, baselines := DetectAnomalies(series, opts)

	byDay := make(map[string]Baseline, len(baselines))
	for day, b := range baselines {
		byDay[day.String()] = Baseline{Mean: round(b.Mean, 2), StdDev: round(b.StdDev, 2), Samples: b.Samples}
	}
	status := checks.StatusPassed
	if len(anomalies) > 0 {
		status = checks.StatusFailed
	}
	return Outcome{
		Status: status,
		Summary: map[string]any{
			"anomaly_count": len(anomalies),
			"anomalies":     anomalies,
			"baselines":     byDay,
			"is_anomaly":    len(anomalies) > 0,
		},
		Actual: map[string]any{
			"observations": len(series),
			"latest_count": latestCount(series, opts.AsOf),
		},
		Expected: map[string]any{
			"z_threshold":   opts.ZThreshold,
			"min_threshold": opts.MinThreshold,
		},
		RowsProcessed: len(rows),
	}
}

func (e AnomalyExecutor) options(params checks.Parameters) (AnomalyOptions, string, string, error) {
	opts := DefaultAnomalyOptions(now(e.Now))
	var err error
	if opts.ZThreshold, err = params.FloatOr("z_threshold", DefaultZThreshold); err != nil {
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

func applyDates(params checks.Parameters, asOf, minDate *time.Time) error {
	if d, ok, err := params.Date("as_of"); err != nil {
		return err
	} else if ok {
		*asOf = d
	}
	if d, ok, err := params.Date("min_date"); err != nil {
		return err
	} else if ok {
		*minDate = d
	}
	return nil
}

func seriesColumns(params checks.Parameters) (string, string, error) {
	dateColumn, err := params.String("date_column")
	if err != nil {
		return "", "", err
	}
	countColumn, err := params.String("count_column")
	if err != nil {
		return "", "", err
	}
	return dateColumn, countColumn, nil
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now().UTC()
}
