package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
)

// StatusProvider reports runtime counters for the health endpoint
type StatusProvider interface {
	ActiveSessions() int
	ConnectedAgents() int
}

type APIHandler struct {
	status StatusProvider
	logger arbor.ILogger
}

func NewAPIHandler(status StatusProvider, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		status: status,
		logger: logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	body := map[string]interface{}{
		"status":     "ok",
		"goroutines": common.GetGoroutineCount(),
	}
	if h.status != nil {
		body["active_sessions"] = h.status.ActiveSessions()
		body["connected_agents"] = h.status.ConnectedAgents()
	}
	WriteJSON(w, http.StatusOK, body)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
