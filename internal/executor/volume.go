package executor

import (
	"context"
	"fmt"
	"strconv"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
)

type VolumeExecutor struct{}

func (VolumeExecutor) Execute(ctx context.Context, test checks.Test, conn dbconnector.Connector) Outcome {
	threshold, hasThreshold, err := test.Parameters.Float("anomaly_threshold_min")
	if err != nil {
		return errorOutcome(err)
	}
	alertOnEmpty, err := test.Parameters.Bool("alert_on_empty")
	if err != nil {
		return errorOutcome(err)
	}
	column, err := test.Parameters.String("count_column")
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
	count, err := countValue(rows[0], column)
	if err != nil {
		return errorMessage(err.Error(), len(rows))
	}

	var thresholdValue any
	if hasThreshold {
		thresholdValue = threshold
	}
	status := checks.StatusPassed
	reason := ""
	switch {
	case count == 0:
		if alertOnEmpty {
			status = checks.StatusFailed
			reason = "Table is empty"
		}
	case hasThreshold && count < threshold:
		status = checks.StatusFailed
		reason = fmt.Sprintf("Count %s is below minimum threshold %s", formatNumber(count), formatNumber(threshold))
	}

	summary := map[string]any{
		"count":         count,
		"threshold_min": thresholdValue,
		"is_anomaly":    status == checks.StatusFailed,
	}
	if reason != "" {
		summary["reason"] = reason
	}
	return Outcome{
		Status:        status,
		Summary:       summary,
		Actual:        map[string]any{"count": count},
		Expected:      map[string]any{"min_count": thresholdValue},
		RowsProcessed: len(rows),
	}
}

// countValue picks the explicit column, then a column named count, then the
// first numeric column of the row.
func countValue(row dbconnector.Row, column string) (float64, error) {
	if column != "" {
		v, ok := row.Get(column)
		if !ok {
			return 0, fmt.Errorf("column %q not found in result row", column)
		}
		f, ok := dbconnector.Numeric(v)
		if !ok {
			return 0, fmt.Errorf("column %q is not numeric", column)
		}
		return f, nil
	}
	if v, ok := row.Get("count"); ok {
		if f, ok := dbconnector.Numeric(v); ok {
			return f, nil
		}
	}
	for _, col := range row {
		if f, ok := dbconnector.Numeric(col.Value); ok {
			return f, nil
		}
	}
	return 0, fmt.Errorf("no numeric column in result row")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
