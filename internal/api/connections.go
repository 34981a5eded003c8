package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dbconnector "pipeline-validation"
	"pipeline-validation/internal/checks"
)

type connectionRequest struct {
	ID          string `json:"connection_id"`
	Name        string `json:"name"`
	Engine      string `json:"db_type"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Database    string `json:"database_name"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	SSLMode     string `json:"ssl_mode"`
	Environment string `json:"environment"`
}

type connectionTestResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) handleConnectionCreate(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conn := checks.Connection{
		ID:          strings.TrimSpace(req.ID),
		Name:        req.Name,
		Engine:      dbconnector.NormalizeEngine(req.Engine),
		Host:        strings.TrimSpace(req.Host),
		Port:        req.Port,
		Database:    strings.TrimSpace(req.Database),
		Username:    req.Username,
		Password:    req.Password,
		SSLMode:     req.SSLMode,
		Environment: req.Environment,
	}
	if conn.Engine == "" {
		conn.Engine = req.Engine
	}
	if err := checks.ValidateConnection(conn); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	ctx, cancel := h.storeContext(r)
	defer cancel()
	created, err := h.Connections.CreateConnection(ctx, conn)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Redacted())
}

func (h *Handler) handleConnectionGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()
	conn, err := h.Connections.GetConnection(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn.Redacted())
}

// handleConnectionTest opens the connection and runs SELECT 1.
func (h *Handler) handleConnectionTest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()
	conn, err := h.Connections.GetConnection(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	connector, err := h.Connectors(conn.Config())
	if err == nil {
		_, err = dbconnector.Query(ctx, connector, "SELECT 1")
	}
	if err != nil {
		h.logger().Info("connection test failed", slog.String("connection_id", conn.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, connectionTestResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, connectionTestResponse{OK: true})
}
