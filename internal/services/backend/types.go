package backend

import "github.com/ternarybob/leadwatch/internal/models"

type registerRequest struct {
	Username string `json:"username"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

// ResumeUpload is the backend's reply to a resume upload
type ResumeUpload struct {
	Filename        string `json:"filename"`
	ExtractedLength int    `json:"extracted_length"`
}

type saveContactsRequest struct {
	UserID   string        `json:"user_id"`
	Contacts []models.Lead `json:"contacts"`
}

// SaveResult reports how many contacts the backend stored
type SaveResult struct {
	Saved   int    `json:"saved"`
	Message string `json:"message,omitempty"`
}

// ContactsPage is one page of saved contacts
type ContactsPage struct {
	Contacts []models.Lead `json:"contacts"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

type errorBody struct {
	Message string `json:"message"`
}
