package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/services/watch"
)

// WatchHandler serves START_WATCH_MODE, STOP_WATCH_MODE and GET_WATCH_STATUS
type WatchHandler struct {
	watch    WatchService
	accounts AccountService
	profiles ProfileService
	logger   arbor.ILogger
}

// NewWatchHandler creates a new watch handler
func NewWatchHandler(watchService WatchService, accounts AccountService, profileService ProfileService, logger arbor.ILogger) *WatchHandler {
	return &WatchHandler{
		watch:    watchService,
		accounts: accounts,
		profiles: profileService,
		logger:   logger,
	}
}

// StartHandler handles POST /api/watch/start
func (h *WatchHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req watch.StartRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.applyProfile(r, &req)

	session, err := h.watch.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, watch.ErrInvalidConfig) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("tab_id", req.TabID).Msg("Failed to start watch mode")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": session,
	})
}

// applyProfile resolves the identity and fills unset fields from the named profile
func (h *WatchHandler) applyProfile(r *http.Request, req *watch.StartRequest) {
	if h.accounts != nil {
		req.ProfileID = h.accounts.Identity(r.Context(), req.ProfileID)
	}
	if h.profiles == nil {
		return
	}
	profile, ok := h.profiles.ResolveProfile(r.Context(), req.ProfileID)
	if !ok {
		return
	}

	if strings.TrimSpace(req.WebhookURL) == "" {
		req.WebhookURL = profile.WebhookURL
	}
	if req.SheetName == "" {
		req.SheetName = profile.SheetName
	}
	if len(req.Keywords) == 0 {
		req.Keywords = profile.Filters.Keywords
	}
	if len(req.MandatoryKeywords) == 0 {
		req.MandatoryKeywords = profile.Filters.MandatoryKeywords
	}
	if len(req.TargetTitles) == 0 {
		req.TargetTitles = profile.Filters.TargetTitles
	}
	if len(req.ExcludeKeywords) == 0 {
		req.ExcludeKeywords = profile.Filters.ExcludeKeywords
	}
	if req.ScrollCount == 0 {
		req.ScrollCount = profile.Filters.ScrollCount
	}
}

// StopHandler handles POST /api/watch/stop
func (h *WatchHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		var body struct {
			TabID string `json:"tabId"`
		}
		if err := DecodeJSON(r, &body); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		tabID = body.TabID
	}
	if tabID == "" {
		WriteError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	if err := h.watch.Stop(r.Context(), tabID); err != nil {
		h.logger.Error().Err(err).Str("tab_id", tabID).Msg("Failed to stop watch mode")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, "Watch mode stopped")
}

// StatusHandler handles GET /api/watch/status?tab=
func (h *WatchHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		WriteError(w, http.StatusBadRequest, "tab query parameter is required")
		return
	}

	session, ok := h.watch.Status(tabID)
	body := map[string]interface{}{
		"success": true,
		"active":  ok && session.Active,
	}
	if ok {
		body["session"] = session
	}
	WriteJSON(w, http.StatusOK, body)
}

// SessionsHandler handles GET /api/watch/sessions
func (h *WatchHandler) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sessions := h.watch.List()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": sessions,
		"count":    len(sessions),
	})
}
