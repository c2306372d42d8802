// Package manual runs one-off extractions requested from the popup.
package manual

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/backend"
	"github.com/ternarybob/leadwatch/internal/services/dedup"
	"github.com/ternarybob/leadwatch/internal/services/extractor"
)

// Extraction outcomes
const (
	OutcomeExtracted     = "extracted"
	OutcomeAllDuplicates = "all_duplicates"
	OutcomeNoMatches     = "no_matches"
)

// ErrNoSource is returned when a request carries neither HTML nor a reachable tab
var ErrNoSource = errors.New("either html or tabId is required")

// Identities resolves the dedup identity and backend user for a request
type Identities interface {
	Identity(ctx context.Context, requested string) string
	UserID(ctx context.Context) string
}

// ContactSaver persists extracted leads to the user's contact list
type ContactSaver interface {
	SaveContacts(ctx context.Context, userID string, leads []models.Lead) (*backend.SaveResult, error)
}

// Request is one MANUAL_EXTRACT call. HTML wins over TabID when both are set.
type Request struct {
	TabID       string              `json:"tabId"`
	HTML        string              `json:"html"`
	BaseURL     string              `json:"baseUrl"`
	ProfileID   string              `json:"profileId"`
	Filters     models.FilterConfig `json:"filters"`
	ScrollCount int                 `json:"scrollCount"`
}

// Result is the MANUAL_EXTRACT reply payload
type Result struct {
	Outcome        string         `json:"outcome"`
	Message        string         `json:"message"`
	Leads          []models.Lead  `json:"leads"`
	TotalScanned   int            `json:"totalScanned"`
	TotalExtracted int            `json:"totalExtracted"`
	Duplicates     int            `json:"duplicates"`
	Rejected       map[string]int `json:"rejected,omitempty"`
	BackendSaved   int            `json:"backendSaved"`
	Warning        string         `json:"warning,omitempty"`
}

// Service runs manual extractions
type Service struct {
	extractor  *extractor.Extractor
	snapshots  interfaces.Snapshotter
	history    *dedup.Store
	identities Identities
	contacts   ContactSaver
	logger     arbor.ILogger
}

// NewService creates a new manual extraction service. snapshots and contacts may be nil.
func NewService(ext *extractor.Extractor, snapshots interfaces.Snapshotter, history *dedup.Store, identities Identities, contacts ContactSaver, logger arbor.ILogger) *Service {
	return &Service{
		extractor:  ext,
		snapshots:  snapshots,
		history:    history,
		identities: identities,
		contacts:   contacts,
		logger:     logger,
	}
}

// Extract scans the page, drops leads already in the identity's history, commits
// the new ones and mirrors them to the backend contact list when a user is known
func (s *Service) Extract(ctx context.Context, req Request) (*Result, error) {
	filters := req.Filters.Normalized()
	if req.ScrollCount > 0 {
		filters.ScrollCount = req.ScrollCount
	}

	batch, err := s.scan(ctx, req, filters)
	if err != nil {
		return nil, err
	}
	if batch.ContextInvalidated() {
		return nil, fmt.Errorf("failed to extract: %s", batch.Error)
	}

	identity := s.identities.Identity(ctx, req.ProfileID)
	result := &Result{
		Outcome:        OutcomeNoMatches,
		Leads:          []models.Lead{},
		TotalScanned:   batch.TotalScanned,
		TotalExtracted: len(batch.Leads),
		Rejected:       batch.Rejected,
	}

	err = s.history.Update(ctx, identity, func(history *dedup.History) ([]string, error) {
		split := dedup.Split(history, batch.Leads)
		result.Duplicates = split.Duplicates
		result.Leads = split.Fresh
		switch {
		case len(split.Fresh) > 0:
			result.Outcome = OutcomeExtracted
		case split.Duplicates > 0:
			result.Outcome = OutcomeAllDuplicates
		}
		return split.Keys, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update history: %w", err)
	}

	if len(result.Leads) > 0 {
		s.saveContacts(ctx, result)
	}
	result.Message = message(result)

	s.logger.Info().
		Str("identity", identity).
		Str("outcome", result.Outcome).
		Int("scanned", result.TotalScanned).
		Int("new", len(result.Leads)).
		Int("duplicates", result.Duplicates).
		Msg("Manual extraction complete")

	return result, nil
}

func (s *Service) scan(ctx context.Context, req Request, filters models.FilterConfig) (*models.BatchResult, error) {
	if strings.TrimSpace(req.HTML) != "" {
		extracted, err := s.extractor.ExtractHTML(req.HTML, req.BaseURL, filters)
		if err != nil {
			return nil, err
		}
		return extracted.ToBatchResult(), nil
	}
	if req.TabID == "" || s.snapshots == nil {
		return nil, ErrNoSource
	}

	batch, err := s.snapshots.Snapshot(ctx, req.TabID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot tab %s: %w", req.TabID, err)
	}
	return batch, nil
}

// saveContacts never fails the extraction; a backend problem becomes a warning
func (s *Service) saveContacts(ctx context.Context, result *Result) {
	if s.contacts == nil {
		return
	}
	userID := s.identities.UserID(ctx)
	if userID == "" {
		return
	}

	saved, err := s.contacts.SaveContacts(ctx, userID, result.Leads)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save contacts to backend")
		result.Warning = "Leads extracted but not saved to your contact list: " + err.Error()
		return
	}
	result.BackendSaved = saved.Saved
}

func message(r *Result) string {
	switch r.Outcome {
	case OutcomeExtracted:
		return fmt.Sprintf("Extracted %d new leads", len(r.Leads))
	case OutcomeAllDuplicates:
		return fmt.Sprintf("Found %d leads but all were duplicates", r.Duplicates)
	default:
		return "No new leads found"
	}
}
