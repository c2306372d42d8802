package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

// AgentHandler accepts agent messages over plain HTTP, for agents that cannot
// hold a websocket open
type AgentHandler struct {
	handler interfaces.BatchHandler
	logger  arbor.ILogger
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(handler interfaces.BatchHandler, logger arbor.ILogger) *AgentHandler {
	return &AgentHandler{
		handler: handler,
		logger:  logger,
	}
}

type pageLoadedRequest struct {
	TabID string `json:"tabId"`
	URL   string `json:"url"`
}

type batchResultRequest struct {
	TabID  string              `json:"tabId"`
	Result *models.BatchResult `json:"result"`
}

// PageLoadedHandler handles POST /api/agent/page-loaded
func (h *AgentHandler) PageLoadedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req pageLoadedRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TabID == "" {
		WriteError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	if err := h.handler.PageLoaded(r.Context(), req.TabID, req.URL); err != nil {
		h.logger.Warn().Err(err).Str("tab_id", req.TabID).Msg("Page load handling failed")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// BatchResultHandler handles POST /api/agent/batch-result
func (h *AgentHandler) BatchResultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req batchResultRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TabID == "" {
		WriteError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	ack, err := h.handler.HandleBatchResult(r.Context(), req.TabID, req.Result)
	if err != nil {
		h.logger.Error().Err(err).Str("tab_id", req.TabID).Msg("Batch result handling failed")
		WriteJSON(w, http.StatusInternalServerError, &models.BatchAck{Success: false, Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, ack)
}

// PingHandler handles GET /api/agent/ping
func (h *AgentHandler) PingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
