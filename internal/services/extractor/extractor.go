// Package extractor turns a rendered feed or search page into lead records.
package extractor

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/emails"
	"github.com/ternarybob/leadwatch/internal/services/keywords"
)

// DefaultBaseURL is used to resolve relative links when the caller has no page URL
const DefaultBaseURL = "https://www.linkedin.com/"

// Rejection reasons beyond the keyword engine's
const (
	ReasonNoIdentity = "no_identity"
	ReasonError      = "error"
)

// Result is the outcome of scanning one page snapshot
type Result struct {
	Leads        []models.Lead
	TotalScanned int
	Rejected     map[string]int
}

// ToBatchResult wraps the result for delivery to the coordinator
func (r *Result) ToBatchResult() *models.BatchResult {
	return &models.BatchResult{
		Leads:        r.Leads,
		TotalScanned: r.TotalScanned,
		Rejected:     r.Rejected,
	}
}

// Extractor scans containers and builds leads. It holds no per-page state.
type Extractor struct {
	logger arbor.ILogger
	now    func() time.Time
}

// NewExtractor creates a new extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{
		logger: logger,
		now:    time.Now,
	}
}

// ExtractHTML parses html and runs Extract over it
func (e *Extractor) ExtractHTML(html string, baseURL string, filters models.FilterConfig) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for extraction: %w", err)
	}
	return e.Extract(doc, baseURL, filters), nil
}

// Extract scans every outermost container in doc. A failure inside one container is
// logged and counted but never aborts the scan.
func (e *Extractor) Extract(doc *goquery.Document, baseURL string, filters models.FilterConfig) *Result {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		e.logger.Warn().Err(err).Str("base_url", baseURL).Msg("Failed to parse base URL, falling back to default")
		base, _ = url.Parse(DefaultBaseURL)
	}

	engine := keywords.NewEngine(filters)
	result := &Result{
		Leads:    []models.Lead{},
		Rejected: make(map[string]int),
	}

	containers := doc.Find(containerQuery).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(containerQuery).Length() == 0
	})

	extractedAt := e.now()
	containers.Each(func(i int, container *goquery.Selection) {
		result.TotalScanned++

		lead, reason, err := e.extractContainer(container, base, engine, extractedAt)
		if err != nil {
			result.Rejected[ReasonError]++
			e.logger.Warn().Err(err).Int("container", i).Msg("Failed to extract container, skipping")
			return
		}
		if lead == nil {
			result.Rejected[reason]++
			return
		}
		result.Leads = append(result.Leads, *lead)
	})

	e.logger.Debug().
		Int("scanned", result.TotalScanned).
		Int("leads", len(result.Leads)).
		Int("rejected", result.TotalScanned-len(result.Leads)).
		Msg("Page extraction complete")

	return result
}

func (e *Extractor) extractContainer(container *goquery.Selection, base *url.URL, engine *keywords.Engine, extractedAt time.Time) (lead *models.Lead, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			lead, reason, err = nil, ReasonError, fmt.Errorf("panic while extracting container: %v", r)
		}
	}()

	name := resolve(container, nameStrategies)
	title := resolve(container, titleStrategies)
	company := resolve(container, companyStrategies)
	if company == "" {
		company = companyFromHeadline(title)
	}

	fullText := normalizeSpace(container.Text())
	expanded := resolve(container, expandedStrategies)
	content := resolve(container, contentStrategies)

	searchContent := content
	if searchContent == "" {
		searchContent = expanded
	}
	if searchContent == "" {
		searchContent = fullText
	}

	decision := engine.Evaluate(keywords.Candidate{
		Title: title,
		Text:  searchableText(searchContent, title, name, company),
	})
	if !decision.Accepted {
		return nil, decision.Reason, nil
	}

	sources := append([]string{fullText, expanded, content}, mailtoSources(container)...)
	email, _ := emails.First(sources...)

	post := postURL(container, base)
	candidate := &models.Lead{
		Name:            name,
		Title:           title,
		Company:         company,
		Email:           email,
		ProfileURL:      normalizeURL(resolve(container, profileStrategies), base),
		PostURL:         post,
		JobLink:         jobLink(container, base, post),
		PostPreview:     buildPreview(content, fullText, name, title),
		ExtractedAt:     extractedAt,
		MatchedKeywords: decision.Matched,
	}
	if candidate.MatchedKeywords == nil {
		candidate.MatchedKeywords = []string{}
	}

	if !candidate.HasIdentity() {
		return nil, ReasonNoIdentity, nil
	}
	return candidate, "", nil
}
