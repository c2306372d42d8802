package models

import (
	"strings"
	"time"
)

// MaxPreviewLength caps Lead.PostPreview in runes
const MaxPreviewLength = 500

// Lead is one extracted contact/opportunity record.
// JSON names are camelCase to stay wire-compatible with the extension and webhook consumers.
type Lead struct {
	Name            string    `json:"name"`
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Email           string    `json:"email"`
	ProfileURL      string    `json:"profileUrl"`
	PostURL         string    `json:"postUrl"`
	JobLink         string    `json:"jobLink"`
	PostPreview     string    `json:"postPreview"`
	ExtractedAt     time.Time `json:"extractedAt"`
	MatchedKeywords []string  `json:"matchedKeywords"`
}

// HasIdentity reports whether the lead carries enough to be worth keeping
func (l *Lead) HasIdentity() bool {
	return l.Name != "" || l.Title != "" || l.Email != "" || l.JobLink != ""
}

// DedupKey returns the history key for the lead: lowercased email, else lowercased job link.
// An empty key means the lead can never be deduplicated and is dropped by the pipeline.
func (l *Lead) DedupKey() string {
	if email := strings.TrimSpace(l.Email); email != "" {
		return strings.ToLower(email)
	}
	if link := strings.TrimSpace(l.JobLink); link != "" {
		return strings.ToLower(link)
	}
	return ""
}

// FilterConfig holds the keyword rules applied to every candidate container.
// All terms are matched case-insensitively.
type FilterConfig struct {
	Keywords          []string `json:"keywords" toml:"keywords" yaml:"keywords"`                               // OR: at least one must appear
	MandatoryKeywords []string `json:"mandatoryKeywords" toml:"mandatory_keywords" yaml:"mandatory_keywords"` // AND: every one must appear
	TargetTitles      []string `json:"targetTitles" toml:"target_titles" yaml:"target_titles"`                // title must contain one
	ExcludeKeywords   []string `json:"excludeKeywords" toml:"exclude_keywords" yaml:"exclude_keywords"`       // whole-word reject
	ScrollCount       int      `json:"scrollCount,omitempty" toml:"scroll_count" yaml:"scroll_count"`
}

// Normalized returns a copy with blank terms removed and the rest trimmed
func (f FilterConfig) Normalized() FilterConfig {
	return FilterConfig{
		Keywords:          cleanTerms(f.Keywords),
		MandatoryKeywords: cleanTerms(f.MandatoryKeywords),
		TargetTitles:      cleanTerms(f.TargetTitles),
		ExcludeKeywords:   cleanTerms(f.ExcludeKeywords),
		ScrollCount:       f.ScrollCount,
	}
}

// ParseTerms splits a comma-separated keyword string the way the popup form submits it
func ParseTerms(raw string) []string {
	return cleanTerms(strings.Split(raw, ","))
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if trimmed := strings.TrimSpace(term); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
