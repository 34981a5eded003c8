package executor

import (
	"context"
	"testing"
	"time"

	"pipeline-validation/internal/checks"
)

func TestPriorYearMatchAcrossLeapDay(t *testing.T) {
	date := day(2024, 3, 5)
	history := map[time.Time]int64{day(2023, 3, 7): 10000}
	match, count, ok := PriorYearMatch(history, date)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !match.Equal(day(2023, 3, 7)) || count != 10000 {
		t.Fatalf("unexpected match %v %d", match, count)
	}
	if match.Weekday() != date.Weekday() {
		t.Fatalf("match must share the weekday")
	}
}

func TestPriorYearMatchRequiresWeekday(t *testing.T) {
	date := day(2025, 3, 5)
	history := map[time.Time]int64{
		day(2024, 3, 5): 100,
		day(2024, 3, 9): 100,
	}
	if _, _, ok := PriorYearMatch(history, date); ok {
		t.Fatalf("expected no match")
	}
	history[day(2024, 3, 6)] = 200
	match, count, ok := PriorYearMatch(history, date)
	if !ok || !match.Equal(day(2024, 3, 6)) || count != 200 {
		t.Fatalf("unexpected match %v %d %v", match, count, ok)
	}
}

func TestCompareYearOverYear(t *testing.T) {
	series := []Observation{
		{Date: day(2023, 3, 7), Count: 10000},
		{Date: day(2023, 3, 8), Count: 10000},
		{Date: day(2023, 3, 9), Count: 0},
		{Date: day(2024, 3, 5), Count: 4000},
		{Date: day(2024, 3, 6), Count: 9000},
		{Date: day(2024, 3, 7), Count: 6000},
		{Date: day(2024, 3, 8), Count: 500},
		{Date: day(2024, 3, 9), Count: 8000},
	}
	opts := YoYOptions{ThresholdPct: -50, MinThreshold: 1000, MinDate: day(2024, 1, 1), AsOf: day(2024, 3, 9)}
	findings := CompareYearOverYear(series, opts)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %+v", findings)
	}
	first := findings[0]
	if first.Date != "20240305" || first.Reason != ReasonYoYDecrease || first.PriorDate != "20230307" {
		t.Fatalf("unexpected finding: %+v", first)
	}
	if first.YoYPct == nil || *first.YoYPct != -60 {
		t.Fatalf("unexpected yoy pct: %v", first.YoYPct)
	}
	if findings[1].Date != "20240308" || findings[1].Reason != ReasonBelowMinimum || findings[1].PriorCount != nil {
		t.Fatalf("unexpected floor finding: %+v", findings[1])
	}
}

func TestCompareYearOverYearZeroPrior(t *testing.T) {
	series := []Observation{
		{Date: day(2023, 3, 8), Count: 0},
		{Date: day(2024, 3, 6), Count: 9000},
	}
	findings := CompareYearOverYear(series, YoYOptions{ThresholdPct: -50, MinThreshold: 1000})
	if len(findings) != 0 {
		t.Fatalf("zero prior count must only apply the floor, got %+v", findings)
	}
}

func TestYoYExecutor(t *testing.T) {
	series := []Observation{
		{Date: day(2024, 6, 4), Count: 12000},
		{Date: day(2025, 6, 3), Count: 5500},
	}
	exec := YoYExecutor{Now: func() time.Time { return day(2025, 7, 1) }}
	test := checks.Test{Type: checks.TypeYoY, Query: "q", Parameters: checks.Parameters{"min_date": "2025-01-01"}}
	out := exec.Execute(context.Background(), test, &fakeConnector{rows: seriesRows(series)})
	if out.Status != checks.StatusFailed {
		t.Fatalf("expected failed, got %s (%s)", out.Status, out.ErrorMessage)
	}
	if out.Summary["flagged_count"] != 1 || out.Expected["min_date"] != "20250101" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	test.Parameters["yoy_threshold_pct"] = -60.0
	out = exec.Execute(context.Background(), test, &fakeConnector{rows: seriesRows(series)})
	if out.Status != checks.StatusPassed {
		t.Fatalf("expected passed, got %s", out.Status)
	}
}

func TestYoYExecutorLatestCountBeforeAsOf(t *testing.T) {
	series := []Observation{
		{Date: day(2024, 6, 4), Count: 12000},
		{Date: day(2025, 6, 3), Count: 11000},
		{Date: day(2025, 7, 2), Count: 7},
	}
	exec := YoYExecutor{Now: func() time.Time { return day(2025, 7, 2) }}
	test := checks.Test{Type: checks.TypeYoY, Query: "q", Parameters: checks.Parameters{}}
	out := exec.Execute(context.Background(), test, &fakeConnector{rows: seriesRows(series)})
	if out.Status != checks.StatusPassed {
		t.Fatalf("observation on as_of must not be flagged, got %s (%s)", out.Status, out.ErrorMessage)
	}
	if out.Actual["latest_count"] != int64(11000) {
		t.Fatalf("latest_count must come from before as_of, got %v", out.Actual["latest_count"])
	}
}
