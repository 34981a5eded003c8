package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/dashboard"
	"pipeline-validation/internal/orchestrator"
	"pipeline-validation/internal/storage"
)

const (
	ServiceName    = "Data Pipeline Validation System"
	ServiceVersion = "0.1.0"
)

type TestRepository interface {
	CreateTest(ctx context.Context, t checks.Test) (checks.Test, error)
	GetTest(ctx context.Context, id string) (checks.Test, error)
	ListTests(ctx context.Context, filter storage.TestFilter) ([]checks.Test, error)
	UpdateTest(ctx context.Context, t checks.Test) (checks.Test, error)
	DeleteTest(ctx context.Context, id string) error
}

type ConnectionRepository interface {
	CreateConnection(ctx context.Context, c checks.Connection) (checks.Connection, error)
	GetConnection(ctx context.Context, id string) (checks.Connection, error)
}

type ExecutionReader interface {
	ListExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]checks.Execution, error)
	GetExecution(ctx context.Context, id string) (checks.Execution, error)
}

type Runner interface {
	Run(ctx context.Context, testID string, wait bool) (orchestrator.RunResult, error)
}

type SummaryProvider interface {
	Summary(ctx context.Context, since time.Time) (dashboard.Summary, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Tests       TestRepository
	Connections ConnectionRepository
	Executions  ExecutionReader
	Runner      Runner
	Dashboard   SummaryProvider
	Ready       Pinger
	Connectors  orchestrator.ConnectorFactory
	Logger      *slog.Logger
	// Timeout bounds store calls; the run endpoint with wait=true is bounded
	// by the orchestrator wait timeout instead.
	Timeout        time.Duration
	RequestTimeout time.Duration
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

// Router builds the chi router with the standard middleware stack.
func (h *Handler) Router() chi.Router {
	requestTimeout := h.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/tests", func(r chi.Router) {
			r.Post("/", h.handleTestCreate)
			r.Get("/", h.handleTestList)
			r.Get("/{id}", h.handleTestGet)
			r.Put("/{id}", h.handleTestUpdate)
			r.Delete("/{id}", h.handleTestDelete)
			r.Post("/{id}/run", h.handleTestRun)
		})
		r.Route("/executions", func(r chi.Router) {
			r.Get("/", h.handleExecutionList)
			r.Get("/{id}", h.handleExecutionGet)
		})
		r.Get("/dashboard/summary", h.handleDashboardSummary)
		r.Route("/connections", func(r chi.Router) {
			r.Post("/", h.handleConnectionCreate)
			r.Get("/{id}", h.handleConnectionGet)
			r.Post("/{id}/test", h.handleConnectionTest)
		})
	})
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": ServiceName,
		"version": ServiceVersion,
		"status":  "running",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		ctx, cancel := h.storeContext(r)
		defer cancel()
		if err := h.Ready.Ping(ctx); err != nil {
			h.logger().Warn("readiness check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
