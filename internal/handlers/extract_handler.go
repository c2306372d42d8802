package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/services/manual"
)

// ExtractHandler serves MANUAL_EXTRACT
type ExtractHandler struct {
	extractor Extractor
	logger    arbor.ILogger
}

// NewExtractHandler creates a new extract handler
func NewExtractHandler(extractor Extractor, logger arbor.ILogger) *ExtractHandler {
	return &ExtractHandler{
		extractor: extractor,
		logger:    logger,
	}
}

// ExtractHandler handles POST /api/extract
func (h *ExtractHandler) ExtractHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req manual.Request
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.extractor.Extract(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manual.ErrNoSource) {
			status = http.StatusBadRequest
		}
		h.logger.Warn().Err(err).Str("tab_id", req.TabID).Msg("Manual extraction failed")
		WriteError(w, status, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}
