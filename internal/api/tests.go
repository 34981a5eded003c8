package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/storage"
)

type testRequest struct {
	ID           string            `json:"test_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Type         checks.TestType   `json:"test_type"`
	Query        string            `json:"query"`
	Parameters   checks.Parameters `json:"parameters"`
	Enabled      *bool             `json:"enabled"`
	Severity     checks.Severity   `json:"severity"`
	ConnectionID string            `json:"connection_id"`
	Tags         []string          `json:"tags"`
}

func (req testRequest) toTest() checks.Test {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	severity := req.Severity
	if severity == "" {
		severity = checks.SeverityMedium
	}
	params := req.Parameters
	if params == nil {
		params = checks.Parameters{}
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	return checks.Test{
		ID:           strings.TrimSpace(req.ID),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Type:         req.Type,
		Query:        req.Query,
		Parameters:   params,
		Enabled:      enabled,
		Severity:     severity,
		ConnectionID: strings.TrimSpace(req.ConnectionID),
		Tags:         tags,
	}
}

type runRequest struct {
	Wait bool `json:"wait"`
}

func (h *Handler) handleTestCreate(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	test := req.toTest()
	if err := checks.ValidateTest(test); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	ctx, cancel := h.storeContext(r)
	defer cancel()
	created, err := h.Tests.CreateTest(ctx, test)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleTestList(w http.ResponseWriter, r *http.Request) {
	var filter storage.TestFilter
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "enabled must be a boolean")
			return
		}
		filter.Enabled = &enabled
	}
	if raw := r.URL.Query().Get("test_type"); raw != "" {
		filter.Type = checks.TestType(raw)
		if !filter.Type.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "unsupported test_type "+raw)
			return
		}
	}
	ctx, cancel := h.storeContext(r)
	defer cancel()
	tests, err := h.Tests.ListTests(ctx, filter)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) handleTestGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()
	test, err := h.Tests.GetTest(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (h *Handler) handleTestUpdate(w http.ResponseWriter, r *http.Request) {
	var patch checks.TestPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := h.storeContext(r)
	defer cancel()
	current, err := h.Tests.GetTest(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	updated := patch.Apply(current)
	if err := checks.ValidateTest(updated); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	saved, err := h.Tests.UpdateTest(ctx, updated)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleTestDelete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()
	if err := h.Tests.DeleteTest(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestRun answers 202 while the execution is pending and 200 once a
// waiting caller has the terminal record.
func (h *Handler) handleTestRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.Runner.Run(r.Context(), chi.URLParam(r, "id"), req.Wait)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if result.Execution != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
