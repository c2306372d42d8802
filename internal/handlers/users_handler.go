package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/services/backend"
	"github.com/ternarybob/leadwatch/internal/services/profiles"
)

// UsersHandler serves registration, username changes, resume upload and settings
type UsersHandler struct {
	accounts AccountService
	contacts ContactFetcher
	logger   arbor.ILogger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(accounts AccountService, contacts ContactFetcher, logger arbor.ILogger) *UsersHandler {
	return &UsersHandler{
		accounts: accounts,
		contacts: contacts,
		logger:   logger,
	}
}

type usernameRequest struct {
	Username string `json:"username"`
}

// userErrorStatus maps account errors to HTTP status codes
func userErrorStatus(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, profiles.ErrInvalidUsername),
		errors.Is(err, profiles.ErrSameUsername),
		errors.Is(err, profiles.ErrInvalidSetting),
		errors.Is(err, profiles.ErrNotPDF),
		errors.Is(err, profiles.ErrEmptyResume):
		return http.StatusBadRequest
	case errors.Is(err, profiles.ErrResumeTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, profiles.ErrNotRegistered):
		return http.StatusUnauthorized
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.As(err, new(*backend.NetworkError)):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AccountHandler handles GET /api/users/me
func (h *UsersHandler) AccountHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	account, err := h.accounts.Account(r.Context())
	if err != nil {
		WriteError(w, userErrorStatus(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"account":    account,
		"registered": account.UserID != "",
	})
}

// RegisterHandler handles POST /api/users/register
func (h *UsersHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req usernameRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.Register(r.Context(), req.Username)
	if err != nil {
		h.logger.Warn().Err(err).Str("username", req.Username).Msg("Registration failed")
		WriteError(w, userErrorStatus(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"account": account,
	})
}

// UsernameHandler handles POST /api/users/username
func (h *UsersHandler) UsernameHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req usernameRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.ChangeUsername(r.Context(), req.Username)
	if err != nil {
		h.logger.Warn().Err(err).Str("username", req.Username).Msg("Username change failed")
		WriteError(w, userErrorStatus(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"account": account,
	})
}

// ResumeHandler handles POST /api/users/resume as multipart form field "file"
func (h *UsersHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, profiles.MaxResumeSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, profiles.ErrResumeTooLarge.Error())
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Please select a file to upload.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	upload, err := h.accounts.UploadResume(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.logger.Warn().Err(err).Str("filename", header.Filename).Msg("Resume upload failed")
		WriteError(w, userErrorStatus(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"upload":  upload,
	})
}

// ScrollCountHandler handles GET and PUT /api/users/scroll-count
func (h *UsersHandler) ScrollCountHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		count, err := h.accounts.ScrollCount(r.Context())
		if err != nil {
			WriteError(w, userErrorStatus(err), err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"scrollCount": count,
		})

	case http.MethodPut:
		var req struct {
			ScrollCount int `json:"scrollCount"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.accounts.SetScrollCount(r.Context(), req.ScrollCount); err != nil {
			WriteError(w, userErrorStatus(err), err.Error())
			return
		}
		WriteSuccess(w, "Scroll count saved")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ContactsHandler handles GET /api/users/contacts?page=&pageSize=
func (h *UsersHandler) ContactsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	userID := h.accounts.UserID(r.Context())
	if userID == "" {
		WriteError(w, http.StatusUnauthorized, profiles.ErrNotRegistered.Error())
		return
	}

	page, pageSize := GetPaginationParams(r)
	contacts, err := h.contacts.FetchContacts(r.Context(), userID, page, pageSize)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to fetch contacts")
		WriteError(w, userErrorStatus(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"contacts": contacts,
	})
}
