package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"pipeline-validation/internal/checks"
)

var ErrSummaryUnavailable = errors.New("dashboard summary unavailable")

const recentWindow = 24 * time.Hour

type Summary struct {
	TotalTests        int        `json:"total_tests"`
	Passed            int        `json:"passed"`
	Failed            int        `json:"failed"`
	Error             int        `json:"error"`
	PassRate          float64    `json:"pass_rate"`
	Last24hExecutions int        `json:"last_24h_executions"`
	CriticalFailures  int        `json:"critical_failures"`
	Since             *time.Time `json:"since,omitempty"`
}

// Source is the read side of the results and config stores.
type Source interface {
	ListSince(ctx context.Context, since time.Time) ([]checks.Execution, error)
	TestSeverities(ctx context.Context) (map[string]checks.Severity, error)
}

type Aggregator struct {
	Source Source
	Now    func() time.Time
}

// Summary computes the dashboard over executions started at or after since;
// a zero since covers the whole history.
func (a *Aggregator) Summary(ctx context.Context, since time.Time) (Summary, error) {
	now := time.Now().UTC()
	if a.Now != nil {
		now = a.Now().UTC()
	}
	from := since
	if !from.IsZero() && from.After(now.Add(-recentWindow)) {
		from = now.Add(-recentWindow)
	}
	execs, err := a.Source.ListSince(ctx, from)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	severities, err := a.Source.TestSeverities(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	return Summarize(execs, severities, since, now), nil
}

// Summarize is the pure aggregation behind Aggregator.Summary. Queued and
// running executions count towards TotalTests and Last24hExecutions but not
// towards the outcome counts or the pass rate.
func Summarize(execs []checks.Execution, severities map[string]checks.Severity, since, now time.Time) Summary {
	var s Summary
	if !since.IsZero() {
		sinceUTC := since.UTC()
		s.Since = &sinceUTC
	}
	recentFrom := now.Add(-recentWindow)
	tests := map[string]struct{}{}
	for _, e := range execs {
		if !e.StartedAt.Before(recentFrom) && !e.StartedAt.After(now) {
			s.Last24hExecutions++
		}
		if !since.IsZero() && e.StartedAt.Before(since) {
			continue
		}
		tests[e.TestID] = struct{}{}
		switch e.Status {
		case checks.StatusPassed:
			s.Passed++
		case checks.StatusFailed:
			s.Failed++
		case checks.StatusError:
			s.Error++
		default:
			continue
		}
		if e.Status != checks.StatusPassed && severities[e.TestID] == checks.HighestSeverity {
			s.CriticalFailures++
		}
	}
	s.TotalTests = len(tests)
	if total := s.Passed + s.Failed + s.Error; total > 0 {
		s.PassRate = math.Round(float64(s.Passed)/float64(total)*100*100) / 100
	}
	return s
}
