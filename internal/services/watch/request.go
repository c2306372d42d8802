package watch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/leadwatch/internal/models"
)

// ErrInvalidConfig is returned when a start request fails validation
var ErrInvalidConfig = errors.New("invalid watch configuration")

// StartRequest is the START_WATCH_MODE configuration submitted for one tab.
// Zero numeric limits take the configured defaults; negative ones are rejected.
type StartRequest struct {
	TabID             string   `json:"tabId" validate:"required,max=128"`
	ProfileID         string   `json:"profileId" validate:"max=64"`
	WebhookURL        string   `json:"webhookUrl" validate:"required,http_url"`
	SheetName         string   `json:"sheetName" validate:"max=256"`
	Keywords          []string `json:"keywords"`
	MandatoryKeywords []string `json:"mandatoryKeywords"`
	TargetTitles      []string `json:"targetTitles"`
	ExcludeKeywords   []string `json:"excludeKeywords"`
	ScrollCount       int      `json:"scrollCount" validate:"gte=0,lte=100"`
	RefreshInterval   int      `json:"refreshInterval" validate:"gte=0,lte=1440"` // minutes
	MaxBatches        int      `json:"maxBatches" validate:"gte=0,lte=10000"`
}

// Filters returns the request's keyword rules
func (r *StartRequest) Filters() models.FilterConfig {
	return models.FilterConfig{
		Keywords:          r.Keywords,
		MandatoryKeywords: r.MandatoryKeywords,
		TargetTitles:      r.TargetTitles,
		ExcludeKeywords:   r.ExcludeKeywords,
	}.Normalized()
}

var startValidator = validator.New()

func (r *StartRequest) validate() error {
	r.TabID = strings.TrimSpace(r.TabID)
	r.WebhookURL = strings.TrimSpace(r.WebhookURL)

	if err := startValidator.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
