package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// HistoryHandler exposes dedup history counts and resets
type HistoryHandler struct {
	history  HistoryService
	accounts AccountService
	logger   arbor.ILogger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history HistoryService, accounts AccountService, logger arbor.ILogger) *HistoryHandler {
	return &HistoryHandler{
		history:  history,
		accounts: accounts,
		logger:   logger,
	}
}

// HistoryHandler handles GET and DELETE /api/history?profile=
func (h *HistoryHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("profile")
	if h.accounts != nil {
		identity = h.accounts.Identity(r.Context(), identity)
	}

	switch r.Method {
	case http.MethodGet:
		count, err := h.history.Count(r.Context(), identity)
		if err != nil {
			h.logger.Error().Err(err).Str("identity", identity).Msg("Failed to read history")
			WriteError(w, http.StatusInternalServerError, "Failed to read history")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"profile": identity,
			"count":   count,
		})

	case http.MethodDelete:
		if err := h.history.Reset(r.Context(), identity); err != nil {
			h.logger.Error().Err(err).Str("identity", identity).Msg("Failed to clear history")
			WriteError(w, http.StatusInternalServerError, "Failed to clear history")
			return
		}
		WriteSuccess(w, "History cleared")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
