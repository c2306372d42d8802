// Package pipeline runs the dedup, deliver, commit sequence for one batch of leads.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/dedup"
	"github.com/ternarybob/leadwatch/internal/services/delivery"
)

// Batch outcomes. They stay distinct so callers can tell the user why nothing arrived.
const (
	OutcomeDelivered     = "delivered"
	OutcomeAllDuplicates = "all_duplicates"
	OutcomeNoMatches     = "no_matches"
	OutcomeSendFailed    = "send_failed"
)

// Sender is the delivery capability the pipeline needs
type Sender interface {
	Send(ctx context.Context, endpoint string, payload interface{}) delivery.Result
}

// Batch is one extraction result bound to its identity and delivery target
type Batch struct {
	Identity     string
	WebhookURL   string
	SheetName    string
	Keywords     []string
	Source       string
	Leads        []models.Lead
	TotalScanned int
}

// Report describes what happened to a batch
type Report struct {
	Outcome    string
	Delivered  int
	Duplicates int
	Keyless    int
	Error      string
}

// Message renders the outcome the way the user sees it
func (r *Report) Message() string {
	switch r.Outcome {
	case OutcomeDelivered:
		return fmt.Sprintf("Sent %d new leads", r.Delivered)
	case OutcomeAllDuplicates:
		return fmt.Sprintf("Found %d leads but all were duplicates", r.Duplicates)
	case OutcomeSendFailed:
		return "Send failed: " + r.Error
	default:
		return "No new leads found"
	}
}

var errSendFailed = errors.New("send failed")

// Pipeline dedups against the identity's history, delivers what is new, and commits
// the delivered keys. Keys are only committed after a successful send.
type Pipeline struct {
	store  *dedup.Store
	sender Sender
	logger arbor.ILogger
	now    func() time.Time
}

// NewPipeline creates a new lead pipeline
func NewPipeline(store *dedup.Store, sender Sender, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		store:  store,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// Process runs one batch. The identity's history stays locked from the duplicate
// check through the commit, so two tabs sharing an identity never both send a lead.
func (p *Pipeline) Process(ctx context.Context, batch Batch) (*Report, error) {
	report := &Report{Outcome: OutcomeNoMatches}
	if len(batch.Leads) == 0 {
		return report, nil
	}

	err := p.store.Update(ctx, batch.Identity, func(history *dedup.History) ([]string, error) {
		split := dedup.Split(history, batch.Leads)
		report.Duplicates = split.Duplicates
		report.Keyless = split.Keyless

		if len(split.Fresh) == 0 {
			if split.Duplicates > 0 {
				report.Outcome = OutcomeAllDuplicates
			}
			return nil, nil
		}

		payload := models.WebhookPayload{
			Leads: split.Fresh,
			Meta: models.NewWebhookMeta(batch.SheetName, batch.TotalScanned, len(split.Fresh),
				batch.Keywords, batch.Source, p.now()),
		}

		result := p.sender.Send(ctx, batch.WebhookURL, payload)
		if !result.Success {
			report.Outcome = OutcomeSendFailed
			report.Error = result.Error
			return nil, errSendFailed
		}

		report.Outcome = OutcomeDelivered
		report.Delivered = len(split.Fresh)
		return split.Keys, nil
	})

	if errors.Is(err, errSendFailed) {
		p.logger.Warn().
			Str("identity", batch.Identity).
			Str("error", report.Error).
			Msg("Batch delivery failed, keys left uncommitted")
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("failed to process batch: %w", err)
	}

	p.logger.Info().
		Str("identity", batch.Identity).
		Str("outcome", report.Outcome).
		Int("delivered", report.Delivered).
		Int("duplicates", report.Duplicates).
		Int("keyless", report.Keyless).
		Msg("Batch processed")

	return report, nil
}
