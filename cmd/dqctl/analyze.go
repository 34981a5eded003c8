package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/executor"
)

func newAnomaliesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies <series.csv>",
		Short: "Find low day-of-week anomalies in a CSV series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := readSeriesFile(args[0])
			if err != nil {
				return err
			}
			opts := executor.DefaultAnomalyOptions(time.Now())
			opts.ZThreshold, _ = cmd.Flags().GetFloat64("z-threshold")
			opts.MinThreshold, _ = cmd.Flags().GetFloat64("min-threshold")
			if opts.AsOf, err = dateFlag(cmd, "as-of", opts.AsOf); err != nil {
				return err
			}
			if opts.MinDate, err = dateFlag(cmd, "min-date", time.Time{}); err != nil {
				return err
			}
			anomalies, _ := executor.DetectAnomalies(series, opts)
			asHTML, _ := cmd.Flags().GetBool("html")
			output, _ := cmd.Flags().GetString("output")
			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if asHTML {
				title := "Anomalies: " + filepath.Base(args[0])
				if err := writeAnomalyReport(w, title, opts, anomalies, time.Now()); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(w, "Thresholds: z-score < %g, count < %g\n\n", opts.ZThreshold, opts.MinThreshold)
				printAnomalies(w, anomalies)
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d anomalies to %s\n", len(anomalies), output)
			}
			return nil
		},
	}
	cmd.Flags().Float64("z-threshold", executor.DefaultZThreshold, "Flag counts whose z-score is below this value")
	cmd.Flags().Float64("min-threshold", executor.DefaultMinThreshold, "Flag counts below this floor")
	cmd.Flags().String("as-of", "", "Ignore observations on or after this date (default: today)")
	cmd.Flags().String("min-date", "", "Only report observations on or after this date")
	cmd.Flags().Bool("html", false, "Write an HTML report instead of the text table")
	cmd.Flags().StringP("output", "o", "-", "Output file")
	return cmd
}

func newYoYCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yoy <series.csv>",
		Short: "Compare a CSV series against the same weekday one year earlier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := readSeriesFile(args[0])
			if err != nil {
				return err
			}
			opts := executor.YoYOptions{AsOf: checks.Day(time.Now())}
			opts.ThresholdPct, _ = cmd.Flags().GetFloat64("threshold-pct")
			opts.MinThreshold, _ = cmd.Flags().GetFloat64("min-threshold")
			if opts.AsOf, err = dateFlag(cmd, "as-of", opts.AsOf); err != nil {
				return err
			}
			if opts.MinDate, err = dateFlag(cmd, "min-date", time.Time{}); err != nil {
				return err
			}
			printFindings(cmd.OutOrStdout(), executor.CompareYearOverYear(series, opts))
			return nil
		},
	}
	cmd.Flags().Float64("threshold-pct", executor.DefaultYoYThresholdPct, "Flag changes at or below this percentage")
	cmd.Flags().Float64("min-threshold", executor.DefaultMinThreshold, "Flag counts below this floor")
	cmd.Flags().String("as-of", "", "Ignore observations on or after this date (default: today)")
	cmd.Flags().String("min-date", "", "Only report observations on or after this date")
	return cmd
}

// newFetchCommand runs a series query directly against a source and writes
// it as CSV, the input format of anomalies and yoy.
func newFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <query>",
		Short: "Run a date/count query against a database and write the series as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg dbconnector.ConnectionConfig
			cfg.Engine, _ = cmd.Flags().GetString("engine")
			cfg.Host, _ = cmd.Flags().GetString("host")
			cfg.Port, _ = cmd.Flags().GetInt("port")
			cfg.User, _ = cmd.Flags().GetString("user")
			cfg.Database, _ = cmd.Flags().GetString("database")
			cfg.SSLMode, _ = cmd.Flags().GetString("ssl-mode")
			cfg.Password = os.Getenv("DQ_DB_PASSWORD")
			dateColumn, _ := cmd.Flags().GetString("date-column")
			countColumn, _ := cmd.Flags().GetString("count-column")
			output, _ := cmd.Flags().GetString("output")

			conn, err := dbconnector.NewConnector(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			rows, err := dbconnector.Query(ctx, conn, args[0])
			if err != nil {
				return err
			}
			series, err := executor.SeriesFromRows(rows, dateColumn, countColumn)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := executor.WriteSeriesCSV(w, dateColumn, countColumn, series); err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(series), output)
			}
			return nil
		},
	}
	cmd.Flags().String("engine", "postgres", "Database engine: postgres, sqlserver, mysql or sqlite")
	cmd.Flags().String("host", "localhost", "Database host")
	cmd.Flags().Int("port", 0, "Database port (default: engine default)")
	cmd.Flags().String("user", "", "Database user; the password is read from DQ_DB_PASSWORD")
	cmd.Flags().String("database", "", "Database name or sqlite file")
	cmd.Flags().String("ssl-mode", "", "TLS mode passed to the driver")
	cmd.Flags().String("date-column", "", "Date column (default: first column)")
	cmd.Flags().String("count-column", "", "Count column (default: count, else second column)")
	cmd.Flags().StringP("output", "o", "-", "Output file")
	return cmd
}

func readSeriesFile(path string) ([]executor.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	series, err := executor.ReadSeriesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

func dateFlag(cmd *cobra.Command, name string, fallback time.Time) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	date, err := checks.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return date, nil
}

func printAnomalies(w io.Writer, anomalies []executor.Anomaly) {
	if len(anomalies) == 0 {
		fmt.Fprintln(w, "No anomalies found.")
		return
	}
	fmt.Fprintf(w, "%-12s %-10s %10s %10s %8s %8s %-8s\n", "Date", "Day", "Count", "Expected", "Z-Score", "% Diff", "Severity")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, a := range anomalies {
		fmt.Fprintf(w, "%-12s %-10s %10s %10s %8.2f %7.1f%% %-8s\n",
			a.Date, a.Weekday, humanize.Comma(a.Count), humanize.Comma(int64(a.Expected+0.5)), a.ZScore, a.PctDiff, a.Severity)
	}
	fmt.Fprintf(w, "\nTotal anomalies: %d\n", len(anomalies))

	fmt.Fprintln(w, "\nGROUPED BY YEAR/MONTH:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, group := range groupByMonth(len(anomalies), func(i int) string { return anomalies[i].Date }) {
		fmt.Fprintf(w, "\n%s (%d anomalies):\n", group.month, len(group.indexes))
		for _, i := range group.indexes {
			a := anomalies[i]
			fmt.Fprintf(w, "  %s (%-9s): %8s\n", a.Date, a.Weekday, humanize.Comma(a.Count))
		}
	}
}

func printFindings(w io.Writer, findings []executor.YoYFinding) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No year-over-year findings.")
		return
	}
	fmt.Fprintf(w, "%-12s %-10s %10s %-12s %10s %8s  %s\n", "Date", "Day", "Count", "Prior Date", "Prior", "YoY %", "Reason")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, f := range findings {
		prior, pct := "-", "-"
		if f.PriorCount != nil {
			prior = humanize.Comma(*f.PriorCount)
		}
		if f.YoYPct != nil {
			pct = fmt.Sprintf("%.1f%%", *f.YoYPct)
		}
		priorDate := f.PriorDate
		if priorDate == "" {
			priorDate = "-"
		}
		fmt.Fprintf(w, "%-12s %-10s %10s %-12s %10s %8s  %s\n", f.Date, f.Weekday, humanize.Comma(f.Count), priorDate, prior, pct, f.Reason)
	}
	fmt.Fprintf(w, "\nTotal findings: %d\n", len(findings))

	fmt.Fprintln(w, "\nGROUPED BY YEAR/MONTH:")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, group := range groupByMonth(len(findings), func(i int) string { return findings[i].Date }) {
		fmt.Fprintf(w, "\n%s (%d findings):\n", group.month, len(group.indexes))
		for _, i := range group.indexes {
			f := findings[i]
			fmt.Fprintf(w, "  %s (%-9s): %8s  %s\n", f.Date, f.Weekday, humanize.Comma(f.Count), f.Reason)
		}
	}
}

type monthGroup struct {
	month   string
	indexes []int
}

// groupByMonth groups date-ordered YYYYMMDD entries by "YYYY-MM", keeping
// first-seen order.
func groupByMonth(n int, date func(i int) string) []monthGroup {
	groups := []monthGroup{}
	for i := 0; i < n; i++ {
		d := date(i)
		if len(d) < 6 {
			continue
		}
		month := d[:4] + "-" + d[4:6]
		if len(groups) == 0 || groups[len(groups)-1].month != month {
			groups = append(groups, monthGroup{month: month})
		}
		last := &groups[len(groups)-1]
		last.indexes = append(last.indexes, i)
	}
	return groups
}
