package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"pipeline-validation/internal/checks"
)

// querySpec is one entry of a queries file.
type querySpec struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	ConnectionID        string   `json:"connection_id"`
	Query               string   `json:"query"`
	BaseQuery           string   `json:"base_query"`
	DateColumn          string   `json:"date_column"`
	CountColumn         string   `json:"count_column"`
	AnomalyThresholdZ   *float64 `json:"anomaly_threshold_z"`
	AnomalyThresholdMin *float64 `json:"anomaly_threshold_min"`
	Severity            string   `json:"severity"`
	Tags                []string `json:"tags"`
}

func loadQueries(r io.Reader) ([]querySpec, error) {
	var file struct {
		Queries *[]querySpec `json:"queries"`
	}
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parse queries file: %w", err)
	}
	if file.Queries == nil {
		return nil, errors.New("queries file must contain a 'queries' array")
	}
	queries := *file.Queries
	if len(queries) == 0 {
		return nil, errors.New("'queries' must be a non-empty array")
	}
	for i, q := range queries {
		required := []struct{ field, value string }{
			{"name", q.Name},
			{"date_column", q.DateColumn},
			{"count_column", q.CountColumn},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				return nil, fmt.Errorf("query #%d is missing required field: %s", i, r.field)
			}
		}
		if q.Description == "" {
			queries[i].Description = q.Name
		}
	}
	return queries, nil
}

var nonIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func testID(name string) string {
	id := strings.Trim(nonIDChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_"), "_.-")
	return "anom_" + id
}

// toTest converts a query entry into an anomaly test. connectionID is used
// when the entry does not name its own connection.
func (q querySpec) toTest(connectionID string) (checks.Test, error) {
	query := q.Query
	if query == "" {
		query = q.BaseQuery
	}
	if strings.TrimSpace(query) == "" {
		return checks.Test{}, fmt.Errorf("query %q has no query or base_query", q.Name)
	}
	if q.ConnectionID != "" {
		connectionID = q.ConnectionID
	}
	params := checks.Parameters{
		"date_column":  q.DateColumn,
		"count_column": q.CountColumn,
	}
	if q.AnomalyThresholdZ != nil {
		params["z_threshold"] = *q.AnomalyThresholdZ
	}
	if q.AnomalyThresholdMin != nil {
		params["min_threshold"] = *q.AnomalyThresholdMin
	}
	severity := checks.Severity(q.Severity)
	if severity == "" {
		severity = checks.SeverityMedium
	}
	tags := q.Tags
	if tags == nil {
		tags = []string{"imported"}
	}
	return checks.Test{
		ID:           testID(q.Name),
		Name:         q.Name,
		Description:  q.Description,
		Type:         checks.TypeAnomaly,
		Query:        query,
		Parameters:   params,
		Enabled:      true,
		Severity:     severity,
		ConnectionID: connectionID,
		Tags:         tags,
	}, nil
}
