package executor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
)

// Observation is one dated count of a metric series.
type Observation struct {
	Date  time.Time
	Count int64
}

var ErrEmptySeries = errors.New("series is empty")

// SeriesFromRows reads (date, count) pairs out of query rows. An empty
// dateColumn selects the first column; an empty countColumn selects a
// column named count, else the second column.
func SeriesFromRows(rows []dbconnector.Row, dateColumn, countColumn string) ([]Observation, error) {
	series := make([]Observation, 0, len(rows))
	for i, row := range rows {
		dateValue, err := pickColumn(row, dateColumn, 0)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		countName := countColumn
		if countName == "" {
			if _, ok := row.Get("count"); ok {
				countName = "count"
			}
		}
		countValue, err := pickColumn(row, countName, 1)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		date, err := toDate(dateValue)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		f, ok := dbconnector.Numeric(countValue)
		if !ok {
			return nil, fmt.Errorf("row %d: count value %v is not numeric", i+1, countValue)
		}
		series = append(series, Observation{Date: date, Count: int64(math.Round(f))})
	}
	sortSeries(series)
	return series, nil
}

func pickColumn(row dbconnector.Row, name string, position int) (any, error) {
	if name != "" {
		v, ok := row.Get(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		return v, nil
	}
	if position >= len(row) {
		return nil, fmt.Errorf("expected at least %d columns, got %d", position+1, len(row))
	}
	return row[position].Value, nil
}

func toDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return checks.Day(t), nil
	case string:
		return checks.ParseDate(t)
	case int64:
		return checks.ParseDate(strconv.FormatInt(t, 10))
	case nil:
		return time.Time{}, errors.New("date value is null")
	}
	return time.Time{}, fmt.Errorf("unsupported date value %v (%T)", v, v)
}

func sortSeries(series []Observation) {
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})
}

// latestCount is the count of the last observation dated before asOf, nil
// when there is none. A zero asOf takes the last observation. series must be
// sorted.
func latestCount(series []Observation, asOf time.Time) any {
	for i := len(series) - 1; i >= 0; i-- {
		if asOf.IsZero() || series[i].Date.Before(asOf) {
			return series[i].Count
		}
	}
	return nil
}

// ReadSeriesCSV parses a two column series with a header row. Date tokens
// may be YYYYMMDD or YYYY-MM-DD.
func ReadSeriesCSV(r io.Reader) ([]Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrEmptySeries
	}
	series := make([]Observation, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 fields, got %d", line, len(rec))
		}
		date, err := checks.ParseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		count, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid count %q", line, rec[1])
		}
		series = append(series, Observation{Date: date, Count: count})
	}
	sortSeries(series)
	return series, nil
}

// WriteSeriesCSV writes the series with normalized YYYYMMDD dates.
func WriteSeriesCSV(w io.Writer, dateColumn, countColumn string, series []Observation) error {
	if dateColumn == "" {
		dateColumn = "date"
	}
	if countColumn == "" {
		countColumn = "count"
	}
	sorted := append([]Observation(nil), series...)
	sortSeries(sorted)
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{dateColumn, countColumn}); err != nil {
		return err
	}
	for _, obs := range sorted {
		if err := writer.Write([]string{checks.FormatDate(obs.Date), strconv.FormatInt(obs.Count, 10)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
