package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/storage"
)

func (h *Handler) handleExecutionList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.ExecutionFilter{
		TestID: strings.TrimSpace(query.Get("test_id")),
		Status: checks.Status(query.Get("status")),
		Limit:  storage.DefaultListLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "invalid status "+string(filter.Status))
		return
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > storage.MaxListLimit {
			writeError(w, http.StatusUnprocessableEntity, "limit must be between 1 and "+strconv.Itoa(storage.MaxListLimit))
			return
		}
		filter.Limit = limit
	}
	ctx, cancel := h.storeContext(r)
	defer cancel()
	execs, err := h.Executions.ListExecutions(ctx, filter)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (h *Handler) handleExecutionGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()
	exec, err := h.Executions.GetExecution(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleDashboardSummary accepts an optional since parameter as RFC 3339 or
// a date token.
func (h *Handler) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			parsed, err = checks.ParseDate(raw)
		}
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "since must be RFC 3339 or YYYYMMDD")
			return
		}
		since = parsed
	}
	ctx, cancel := h.storeContext(r)
	defer cancel()
	summary, err := h.Dashboard.Summary(ctx, since)
	if err != nil {
		h.logger().Error("dashboard summary failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to fetch dashboard summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
