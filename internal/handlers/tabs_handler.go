package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// TabsHandler lists reachable tabs and, in browser mode, opens and closes them
type TabsHandler struct {
	tabs   TabLister
	opener TabOpener
	logger arbor.ILogger
}

// NewTabsHandler creates a new tabs handler. opener is nil when tabs are owned by the extension.
func NewTabsHandler(tabs TabLister, opener TabOpener, logger arbor.ILogger) *TabsHandler {
	return &TabsHandler{
		tabs:   tabs,
		opener: opener,
		logger: logger,
	}
}

type openTabRequest struct {
	TabID string `json:"tabId"`
	URL   string `json:"url"`
}

// ListHandler handles GET /api/agent/tabs
func (h *TabsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tabs := h.tabs.Tabs()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tabs":    tabs,
		"count":   len(tabs),
	})
}

// OpenHandler handles POST /api/agent/tabs
func (h *TabsHandler) OpenHandler(w http.ResponseWriter, r *http.Request) {
	if h.opener == nil {
		WriteError(w, http.StatusNotImplemented, "Tabs are opened by the browser extension in this mode")
		return
	}

	var req openTabRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TabID == "" {
		WriteError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	if err := h.opener.Open(r.Context(), req.TabID, req.URL); err != nil {
		h.logger.Warn().Err(err).Str("tab_id", req.TabID).Msg("Failed to open tab")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"tabId":   req.TabID,
	})
}

// CloseHandler handles DELETE /api/agent/tabs/{id}
func (h *TabsHandler) CloseHandler(w http.ResponseWriter, r *http.Request) {
	if h.opener == nil {
		WriteError(w, http.StatusNotImplemented, "Tabs are closed by the browser extension in this mode")
		return
	}

	tabID := PathID(r, "/api/agent/tabs/")
	if tabID == "" {
		WriteError(w, http.StatusBadRequest, "tab id is required")
		return
	}
	h.opener.CloseTab(tabID)
	WriteSuccess(w, "Tab closed")
}
