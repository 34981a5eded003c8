package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"pipeline-validation/internal/checks"
)

const (
	DefaultStaleAfter = time.Hour
	MsgAbandoned      = "execution abandoned: exceeded stale timeout"
)

// Reconciler moves executions stuck in queued or running for longer than
// StaleAfter to error. A zero StaleAfter disables it.
type Reconciler struct {
	Results    ResultStore
	StaleAfter time.Duration
	Interval   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Sweep runs one reconciliation pass and returns how many executions were
// marked abandoned.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	if r.StaleAfter <= 0 {
		return 0, nil
	}
	now := r.now()
	stale, err := r.Results.ListStale(ctx, now.Add(-r.StaleAfter))
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, exec := range stale {
		applied, err := r.Results.CompleteExecution(ctx, exec.ID, checks.Completion{
			Status:       checks.StatusError,
			CompletedAt:  now,
			DurationMS:   now.Sub(exec.StartedAt).Milliseconds(),
			ErrorMessage: MsgAbandoned,
		})
		if err != nil {
			return marked, err
		}
		if applied {
			marked++
		}
	}
	return marked, nil
}

// Run sweeps on every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	if r.StaleAfter <= 0 {
		return
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = r.StaleAfter / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			marked, err := r.Sweep(ctx)
			if err != nil {
				logger.Error("stale execution sweep failed", slog.String("error", err.Error()))
				continue
			}
			if marked > 0 {
				logger.Warn("marked stale executions", slog.Int("count", marked))
			}
		case <-ctx.Done():
			return
		}
	}
}
