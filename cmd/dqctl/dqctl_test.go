package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pipeline-validation/internal/checks"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestAnomaliesCommand(t *testing.T) {
	var csv strings.Builder
	csv.WriteString("playdatekey,total\n")
	start := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 56; i++ {
		day := start.AddDate(0, 0, i)
		count := 10000
		if checks.FormatDate(day) == "20250610" {
			count = 300
		}
		fmt.Fprintf(&csv, "%s,%d\n", checks.FormatDate(day), count)
	}
	path := writeFile(t, "rounds.csv", csv.String())

	out, err := execute(t, "anomalies", path, "--as-of", "2026-01-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "20250610") || !strings.Contains(out, "Tuesday") {
		t.Fatalf("expected the Tuesday drop in output:\n%s", out)
	}
	if !strings.Contains(out, "Total anomalies: 1") || !strings.Contains(out, "2025-06 (1 anomalies)") {
		t.Fatalf("unexpected totals:\n%s", out)
	}
}

func TestAnomaliesCommandHTMLReport(t *testing.T) {
	var csv strings.Builder
	csv.WriteString("playdatekey,total\n")
	start := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 56; i++ {
		day := start.AddDate(0, 0, i)
		count := 10000
		if checks.FormatDate(day) == "20250610" {
			count = 300
		}
		fmt.Fprintf(&csv, "%s,%d\n", checks.FormatDate(day), count)
	}
	path := writeFile(t, "rounds<daily>.csv", csv.String())
	report := filepath.Join(t.TempDir(), "report.html")

	out, err := execute(t, "anomalies", path, "--as-of", "2026-01-01", "--html", "-o", report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "wrote 1 anomalies to "+report) {
		t.Fatalf("unexpected output: %s", out)
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	html := string(data)
	for _, want := range []string{"<table>", "20250610", "Tuesday", "Total anomalies: 1", "2025-06 (1 anomalies)", "rounds&lt;daily&gt;.csv", "<td>300</td>"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in report:\n%s", want, html)
		}
	}
	if strings.Contains(html, "rounds<daily>") {
		t.Fatalf("title must be escaped")
	}
}

func TestAnomaliesCommandBadDate(t *testing.T) {
	path := writeFile(t, "bad.csv", "date,count\n2025-13-40,10\n")
	if _, err := execute(t, "anomalies", path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestYoYCommand(t *testing.T) {
	path := writeFile(t, "yoy.csv", "date,count\n20240611,10000\n20250610,4000\n")
	out, err := execute(t, "yoy", path, "--min-threshold", "1000", "--as-of", "20260101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "20240611") || !strings.Contains(out, "Year-over-year decrease") {
		t.Fatalf("expected yoy finding:\n%s", out)
	}
	if !strings.Contains(out, "-60.0%") {
		t.Fatalf("expected -60%% change:\n%s", out)
	}

	out, err = execute(t, "yoy", path, "--as-of", "20260101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Below minimum threshold") {
		t.Fatalf("floor reason must win:\n%s", out)
	}
}

func TestFetchCommandWritesCSV(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "series.db")
	out, err := execute(t, "fetch", "--engine", "sqlite", "--database", dbPath,
		"SELECT '2025-06-10' AS day, 42 AS count UNION ALL SELECT '2025-06-09', 40")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "date,count\n20250609,40\n20250610,42\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestLoadQueries(t *testing.T) {
	queries, err := loadQueries(strings.NewReader(`{"queries":[{"name":"Daily Rounds","date_column":"playdatekey","count_column":"total","base_query":"SELECT 1","anomaly_threshold_min":100}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 1 || queries[0].Description != "Daily Rounds" {
		t.Fatalf("unexpected queries: %+v", queries)
	}
	test, err := queries[0].toTest("warehouse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if test.ID != "anom_daily_rounds" || test.Type != checks.TypeAnomaly || test.ConnectionID != "warehouse" {
		t.Fatalf("unexpected test: %+v", test)
	}
	if test.Parameters["min_threshold"] != 100.0 || test.Parameters["date_column"] != "playdatekey" {
		t.Fatalf("unexpected parameters: %+v", test.Parameters)
	}
	if err := checks.ValidateTest(test); err != nil {
		t.Fatalf("imported test must validate: %v", err)
	}
}

func TestLoadQueriesErrors(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `{}`, want: "'queries' array"},
		{body: `{"queries": []}`, want: "non-empty"},
		{body: `{"queries": [{"name": "a", "date_column": "d"}]}`, want: "count_column"},
		{body: `{"queries": [`, want: "parse queries file"},
	}
	for _, tt := range tests {
		_, err := loadQueries(strings.NewReader(tt.body))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tt.body, tt.want, err)
		}
	}
}

func TestImportCommand(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/tests" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, ok := body["created_at"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id, _ := body["test_id"].(string)
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if seen[id] {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"detail":"test already exists"}`))
			return
		}
		seen[id] = true
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	path := writeFile(t, "queries.json", `{"queries":[
		{"name":"Rounds","date_column":"d","count_column":"c","query":"SELECT 1"},
		{"name":"Rounds","date_column":"d","count_column":"c","query":"SELECT 1"}
	]}`)
	out, err := execute(t, "import", "--api", srv.URL, "--file", path, "--connection", "warehouse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "created anom_rounds") || !strings.Contains(out, "skipped anom_rounds") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "1 of 2 queries imported") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestRunCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/tests/missing/run" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"test missing not found"}`))
			return
		}
		var body map[string]bool
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["wait"] {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"execution_id":"e1","task_id":"e1","test_id":"t1","status":"failed","execution":{"execution_id":"e1","test_id":"t1","status":"failed","started_at":"2026-01-01T00:00:00Z"}}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"execution_id":"e1","task_id":"e1","test_id":"t1","status":"queued"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "run", "t1", "--api", srv.URL)
	if err != nil || !strings.Contains(out, `"status": "queued"`) {
		t.Fatalf("unexpected result: %v\n%s", err, out)
	}
	if _, err := execute(t, "run", "t1", "--wait", "--api", srv.URL); err == nil || !strings.Contains(err.Error(), "failed") {
		t.Fatalf("expected failed status error, got %v", err)
	}
	if _, err := execute(t, "run", "missing", "--api", srv.URL); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestGroupByMonth(t *testing.T) {
	dates := []string{"20250103", "20250120", "20250201", "20250315"}
	groups := groupByMonth(len(dates), func(i int) string { return dates[i] })
	if len(groups) != 3 || groups[0].month != "2025-01" || len(groups[0].indexes) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}
