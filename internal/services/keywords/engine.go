package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ternarybob/leadwatch/internal/models"
)

// Rejection reasons reported by Evaluate
const (
	ReasonMissingTitle     = "missing_title"
	ReasonTitleMismatch    = "title_mismatch"
	ReasonExcluded         = "excluded"
	ReasonNoIncludeMatch   = "no_include_match"
	ReasonMissingMandatory = "missing_mandatory"
)

// Candidate is the text a container exposes to the filters
type Candidate struct {
	Title string
	// Text is the searchable text: post content, title, name and company
	Text string
}

// Decision is the outcome of evaluating one candidate
type Decision struct {
	Accepted bool
	Reason   string
	Term     string   // term that caused the rejection, when one did
	Matched  []string // include terms present in the text
}

// Engine applies keyword rules in a fixed order:
// target title, exclude, include (OR), mandatory (AND).
type Engine struct {
	targetTitles []string
	exclude      []string
	include      []string
	mandatory    []string
	includeRaw   []string
}

// NewEngine lowercases and trims the configured terms
func NewEngine(filters models.FilterConfig) *Engine {
	normalized := filters.Normalized()
	return &Engine{
		targetTitles: lowerAll(normalized.TargetTitles),
		exclude:      lowerAll(normalized.ExcludeKeywords),
		include:      lowerAll(normalized.Keywords),
		mandatory:    lowerAll(normalized.MandatoryKeywords),
		includeRaw:   normalized.Keywords,
	}
}

// Evaluate accepts or rejects a candidate. Empty rule lists never reject.
func (e *Engine) Evaluate(c Candidate) Decision {
	title := strings.ToLower(strings.TrimSpace(c.Title))
	text := strings.ToLower(c.Text)

	if len(e.targetTitles) > 0 {
		if title == "" {
			return Decision{Reason: ReasonMissingTitle}
		}
		if !containsAny(title, e.targetTitles) {
			return Decision{Reason: ReasonTitleMismatch}
		}
	}

	for _, term := range e.exclude {
		if ContainsWord(text, term) {
			return Decision{Reason: ReasonExcluded, Term: term}
		}
	}

	var matched []string
	for i, term := range e.include {
		if strings.Contains(text, term) {
			matched = append(matched, e.includeRaw[i])
		}
	}
	if len(e.include) > 0 && len(matched) == 0 {
		return Decision{Reason: ReasonNoIncludeMatch}
	}

	for _, term := range e.mandatory {
		if !strings.Contains(text, term) {
			return Decision{Reason: ReasonMissingMandatory, Term: term, Matched: matched}
		}
	}

	return Decision{Accepted: true, Matched: matched}
}

// ContainsWord reports whether term occurs in text as a standalone token:
// the runes immediately before and after the match must not be letters, digits or underscores.
// Both arguments are compared as given; callers lowercase them first.
func ContainsWord(text, term string) bool {
	if term == "" {
		return false
	}
	for offset := 0; offset <= len(text)-len(term); {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !isWordRune(r)
}

func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func lowerAll(terms []string) []string {
	out := make([]string, len(terms))
	for i, term := range terms {
		out[i] = strings.ToLower(term)
	}
	return out
}
