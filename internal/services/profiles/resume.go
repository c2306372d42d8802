package profiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/leadwatch/internal/services/backend"
)

// MaxResumeSize is the largest resume accepted for upload
const MaxResumeSize = 10 * 1024 * 1024

var (
	ErrNotPDF         = errors.New("Please select a PDF file.")
	ErrResumeTooLarge = errors.New("File size must be less than 10MB.")
	ErrEmptyResume    = errors.New("resume file is empty")
)

// UploadResume checks that data is a readable PDF within the size limit and
// forwards it to the backend for the registered user
func (s *Service) UploadResume(ctx context.Context, filename, contentType string, data []byte) (*backend.ResumeUpload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyResume
	}
	if contentType != "" && !strings.HasPrefix(contentType, "application/pdf") {
		return nil, ErrNotPDF
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") && contentType == "" {
		return nil, ErrNotPDF
	}
	if len(data) > MaxResumeSize {
		return nil, ErrResumeTooLarge
	}

	pages, err := PageCount(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}

	userID := s.UserID(ctx)
	if userID == "" {
		return nil, ErrNotRegistered
	}

	result, err := s.backend.UploadResume(ctx, userID, filepath.Base(filename), data)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("filename", result.Filename).
		Int("pages", pages).
		Int("extracted_length", result.ExtractedLength).
		Msg("Resume uploaded")
	return result, nil
}

// PageCount parses data as a PDF and returns its page count
func PageCount(data []byte) (int, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, errors.New("missing PDF header")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("PDF has no pages")
	}
	return n, nil
}
