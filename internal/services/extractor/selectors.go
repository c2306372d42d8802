package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// containerSelectors is the ordered union of post/result container variants.
// Feed posts, search result cards and the public activity card layout are all covered.
var containerSelectors = []string{
	"div.feed-shared-update-v2",
	"div[data-urn*='urn:li:activity:']",
	"div[data-id*='urn:li:activity:']",
	"li.reusable-search__result-container",
	"div[data-chameleon-result-urn]",
	"div.entity-result",
	"article.main-feed-activity-card",
}

var containerQuery = strings.Join(containerSelectors, ", ")

// reader pulls a value out of the first element matched by a strategy's selector
type reader func(s *goquery.Selection) string

// strategy is one (selector, read) pair in a fallback table
type strategy struct {
	selector string
	read     reader
}

func text(s *goquery.Selection) string {
	return normalizeSpace(s.Text())
}

func attr(name string) reader {
	return func(s *goquery.Selection) string {
		value, _ := s.Attr(name)
		return strings.TrimSpace(value)
	}
}

// visibleText prefers the aria-hidden copy LinkedIn renders for sighted users,
// which excludes the duplicated screen-reader label.
func visibleText(s *goquery.Selection) string {
	if hidden := s.Find("span[aria-hidden='true']").First(); hidden.Length() > 0 {
		if value := normalizeSpace(hidden.Text()); value != "" {
			return value
		}
	}
	return text(s)
}

var nameStrategies = []strategy{
	{".update-components-actor__title", visibleText},
	{".update-components-actor__name", visibleText},
	{".feed-shared-actor__name", text},
	{".entity-result__title-text a", visibleText},
	{".main-feed-activity-card__header .text-sm.link-styled", text},
	{"a[data-tracking-control-name*='actor'] span[dir='ltr']", visibleText},
}

var titleStrategies = []strategy{
	{".update-components-actor__description", visibleText},
	{".feed-shared-actor__description", text},
	{".entity-result__primary-subtitle", text},
	{".main-feed-activity-card__header .text-color-text-low-emphasis", text},
}

var companyStrategies = []strategy{
	{".update-components-actor__supplementary-actor-info", visibleText},
	{".entity-result__secondary-subtitle", text},
	{"a[href*='/company/'] .update-components-actor__title", visibleText},
	{"[data-test-company-name]", attr("data-test-company-name")},
}

var profileStrategies = []strategy{
	{"a.update-components-actor__meta-link", attr("href")},
	{"a.update-components-actor__image", attr("href")},
	{".entity-result__title-text a", attr("href")},
	{"a.app-aware-link[href*='/in/']", attr("href")},
	{"a[href*='/in/']", attr("href")},
	{"a[href*='/company/']", attr("href")},
}

var contentStrategies = []strategy{
	{".update-components-text", text},
	{".feed-shared-update-v2__description", text},
	{".feed-shared-text", text},
	{".entity-result__content-summary", text},
	{".attributed-text-segment-list__content", text},
}

var expandedStrategies = []strategy{
	{".feed-shared-inline-show-more-text", text},
	{".update-components-update-v2__commentary", text},
	{"[data-test-id='main-feed-activity-card__commentary']", text},
}

// resolve walks a strategy table and returns the first non-empty value
func resolve(container *goquery.Selection, strategies []strategy) string {
	for _, st := range strategies {
		match := container.Find(st.selector).First()
		if match.Length() == 0 {
			continue
		}
		if value := st.read(match); value != "" {
			return value
		}
	}
	return ""
}
