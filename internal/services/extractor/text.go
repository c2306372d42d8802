package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/leadwatch/internal/models"
)

const minContentLength = 50

var (
	// companyPattern pulls the employer out of a headline such as "Recruiter at Acme | Hiring"
	companyPattern = regexp.MustCompile(`(?i)(?:\bat\b|@)\s+([^|•·,\n]+)`)
	leadingBullets = "•·-–—*▪►●◦|>"
)

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// companyFromHeadline falls back to parsing "… at Acme" / "… @ Acme"
func companyFromHeadline(headline string) string {
	m := companyPattern.FindStringSubmatch(headline)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// buildPreview prefers post content; short content falls back to the container text
// with the actor's name and headline stripped from the front.
func buildPreview(content, fullText, name, title string) string {
	preview := normalizeSpace(content)
	if utf8.RuneCountInString(preview) < minContentLength {
		preview = normalizeSpace(fullText)
		for _, prefix := range []string{name, title} {
			if prefix != "" {
				preview = strings.TrimSpace(strings.TrimPrefix(preview, prefix))
			}
		}
	}

	preview = strings.TrimLeft(preview, leadingBullets+" ")
	return truncateRunes(preview, models.MaxPreviewLength)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// searchableText joins the texts keyword rules run over, lowercased
func searchableText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}
