package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const activityURLFormat = "https://www.linkedin.com/feed/update/urn:li:activity:%s/"

var (
	activityURNPattern  = regexp.MustCompile(`urn:li:activity:(\d+)`)
	activityAttrPattern = regexp.MustCompile(`activity[:\-](\d{10,})`)
	postPathMarkers     = []string{"/feed/update/", "/posts/", "/activity-"}
)

// normalizeURL resolves href against base and strips query string and fragment
func normalizeURL(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || shouldSkipLink(href) {
		return ""
	}

	var resolved *url.URL
	var err error
	if base != nil {
		resolved, err = base.Parse(href)
	} else {
		resolved, err = url.Parse(href)
	}
	if err != nil || !resolved.IsAbs() {
		return ""
	}

	resolved.RawQuery = ""
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}

func shouldSkipLink(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "#")
}

// postURL resolves the canonical post link for a container.
// Strategies: activity URN attribute, known post anchors, any data-* attribute carrying an activity id.
func postURL(container *goquery.Selection, base *url.URL) string {
	if id := activityFromURN(container); id != "" {
		return fmt.Sprintf(activityURLFormat, id)
	}

	var found string
	container.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		for _, marker := range postPathMarkers {
			if strings.Contains(href, marker) {
				found = normalizeURL(href, base)
				return found == ""
			}
		}
		return true
	})
	if found != "" {
		return found
	}

	if id := activityFromDataAttrs(container); id != "" {
		return fmt.Sprintf(activityURLFormat, id)
	}
	return ""
}

func activityFromURN(container *goquery.Selection) string {
	for _, name := range []string{"data-urn", "data-id"} {
		if value, ok := container.Attr(name); ok {
			if m := activityURNPattern.FindStringSubmatch(value); m != nil {
				return m[1]
			}
		}
	}

	var id string
	container.Find("[data-urn*='urn:li:activity:'], [data-id*='urn:li:activity:']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, name := range []string{"data-urn", "data-id"} {
			value, _ := s.Attr(name)
			if m := activityURNPattern.FindStringSubmatch(value); m != nil {
				id = m[1]
				return false
			}
		}
		return true
	})
	return id
}

func activityFromDataAttrs(container *goquery.Selection) string {
	var id string
	scan := func(_ int, s *goquery.Selection) bool {
		for _, node := range s.Nodes {
			for _, a := range node.Attr {
				if !strings.HasPrefix(a.Key, "data-") {
					continue
				}
				if m := activityAttrPattern.FindStringSubmatch(a.Val); m != nil {
					id = m[1]
					return false
				}
			}
		}
		return true
	}

	if scan(0, container) {
		container.Find("*").EachWithBreak(scan)
	}
	return id
}

// jobLink returns the first job posting link in the container, else fallback
func jobLink(container *goquery.Selection, base *url.URL, fallback string) string {
	var found string
	container.Find("a[href*='/jobs/']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		switch {
		case strings.Contains(href, "/jobs/view/"):
			found = normalizeURL(href, base)
		case strings.Contains(href, "/jobs/collections/") || strings.Contains(href, "/jobs/search/"):
			if parsed, err := url.Parse(href); err == nil {
				if id := parsed.Query().Get("currentJobId"); id != "" {
					found = "https://www.linkedin.com/jobs/view/" + id + "/"
				}
			}
		}
		return found == ""
	})
	if found != "" {
		return found
	}
	return fallback
}

// mailtoSources returns the addresses and link text of mailto anchors plus the
// text of any anchor that looks like it contains an address
func mailtoSources(container *goquery.Selection) []string {
	var sources []string
	container.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.HasPrefix(strings.ToLower(href), "mailto:") {
			address := href[len("mailto:"):]
			if decoded, err := url.QueryUnescape(address); err == nil {
				address = decoded
			}
			if q := strings.Index(address, "?"); q >= 0 {
				address = address[:q]
			}
			sources = append(sources, address, a.Text())
			return
		}
		if linkText := a.Text(); strings.Contains(linkText, "@") {
			sources = append(sources, linkText)
		}
	})
	return sources
}
