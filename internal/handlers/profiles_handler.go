package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/profiles"
)

// ProfilesHandler serves filter profile CRUD
type ProfilesHandler struct {
	profiles ProfileService
	logger   arbor.ILogger
}

// NewProfilesHandler creates a new profiles handler
func NewProfilesHandler(profileService ProfileService, logger arbor.ILogger) *ProfilesHandler {
	return &ProfilesHandler{
		profiles: profileService,
		logger:   logger,
	}
}

// ListHandler handles GET /api/profiles
func (h *ProfilesHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.profiles.ListProfiles(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list profiles")
		WriteError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"profiles": list,
		"count":    len(list),
	})
}

// CreateHandler handles POST /api/profiles
func (h *ProfilesHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile
	if err := DecodeJSON(r, &profile); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.save(w, r, &profile, http.StatusCreated)
}

// GetHandler handles GET /api/profiles/{id}
func (h *ProfilesHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/profiles/")
	profile, err := h.profiles.GetProfile(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"profile": profile,
	})
}

// UpdateHandler handles PUT /api/profiles/{id}
func (h *ProfilesHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile
	if err := DecodeJSON(r, &profile); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile.ID = PathID(r, "/api/profiles/")
	h.save(w, r, &profile, http.StatusOK)
}

// DeleteHandler handles DELETE /api/profiles/{id}
func (h *ProfilesHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/profiles/")
	if err := h.profiles.DeleteProfile(r.Context(), id); err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	WriteSuccess(w, "Profile deleted")
}

func (h *ProfilesHandler) save(w http.ResponseWriter, r *http.Request, profile *models.Profile, status int) {
	if err := h.profiles.SaveProfile(r.Context(), profile); err != nil {
		if errors.Is(err, profiles.ErrInvalidProfile) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("profile_id", profile.ID).Msg("Failed to save profile")
		WriteError(w, http.StatusInternalServerError, "Failed to save profile")
		return
	}
	WriteJSON(w, status, map[string]interface{}{
		"success": true,
		"profile": profile,
	})
}

func (h *ProfilesHandler) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Profile not found")
		return
	}
	h.logger.Error().Err(err).Str("profile_id", id).Msg("Profile lookup failed")
	WriteError(w, http.StatusInternalServerError, "Failed to load profile")
}
