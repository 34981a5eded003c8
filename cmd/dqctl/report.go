package main

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"pipeline-validation/internal/executor"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"comma": humanize.Comma,
	"round": func(f float64) int64 { return int64(f + 0.5) },
	"pct":   func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"z":     func(f float64) string { return fmt.Sprintf("%.2f", f) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: right; }
th { background: #f0f0f0; }
td.text { text-align: left; }
tr.high td { background: #fbe3e3; }
tr.medium td { background: #fdf3dc; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Thresholds: z-score &lt; {{.ZThreshold}}, count &lt; {{.MinThreshold}}. Generated {{.Generated}}.</p>
{{if not .Anomalies}}<p>No anomalies found.</p>{{else}}
<p>Total anomalies: {{len .Anomalies}}</p>
<table>
<tr><th>Date</th><th>Day</th><th>Count</th><th>Expected</th><th>Z-Score</th><th>% Diff</th><th>Severity</th></tr>
{{range .Anomalies}}<tr class="{{.Severity}}"><td class="text">{{.Date}}</td><td class="text">{{.Weekday}}</td><td>{{comma .Count}}</td><td>{{comma (round .Expected)}}</td><td>{{z .ZScore}}</td><td>{{pct .PctDiff}}</td><td class="text">{{.Severity}}</td></tr>
{{end}}</table>
<h2>Grouped by year/month</h2>
{{range .Months}}<h3>{{.Month}} ({{len .Anomalies}} anomalies)</h3>
<table>
{{range .Anomalies}}<tr><td class="text">{{.Date}}</td><td class="text">{{.Weekday}}</td><td>{{comma .Count}}</td></tr>
{{end}}</table>
{{end}}{{end}}
</body>
</html>
`))

type anomalyReport struct {
	Title        string
	ZThreshold   float64
	MinThreshold float64
	Generated    string
	Anomalies    []executor.Anomaly
	Months       []reportMonth
}

type reportMonth struct {
	Month     string
	Anomalies []executor.Anomaly
}

// writeAnomalyReport renders the anomaly table and its year/month grouping
// as a standalone HTML page.
func writeAnomalyReport(w io.Writer, title string, opts executor.AnomalyOptions, anomalies []executor.Anomaly, generated time.Time) error {
	report := anomalyReport{
		Title:        title,
		ZThreshold:   opts.ZThreshold,
		MinThreshold: opts.MinThreshold,
		Generated:    generated.UTC().Format("2006-01-02 15:04 MST"),
		Anomalies:    anomalies,
	}
	for _, group := range groupByMonth(len(anomalies), func(i int) string { return anomalies[i].Date }) {
		month := reportMonth{Month: group.month}
		for _, i := range group.indexes {
			month.Anomalies = append(month.Anomalies, anomalies[i])
		}
		report.Months = append(report.Months, month)
	}
	return reportTemplate.Execute(w, report)
}
