// Package emails recovers addresses from scraped post text.
//
// Rendered posts often glue trailing prose onto an address with no
// separator ("jane@acme.comhiring", "bob@corp.inWhatsapp"). Clean trims
// the glued tail off the top-level domain without any network lookup.
package emails

import (
	"regexp"
	"strings"
	"unicode"
)

// candidatePattern is deliberately permissive: the TLD run is greedy so glued words stay
// attached for Clean to cut off.
var candidatePattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// garbageSuffixes are words commonly glued onto a TLD by text rendering
var garbageSuffixes = []string{
	"hashtag", "hiring", "whatsapp", "email", "contact", "call", "phone",
	"apply", "send", "linkedin", "resume", "mobile", "regards", "thanks",
	"interested", "urgent", "please", "share", "website", "visit", "number",
	"subject", "https", "http", "www",
}

// shortTLDs are checked as prefixes of an over-long TLD, in order
var shortTLDs = []string{
	"com", "org", "net", "edu", "gov", "mil",
	"in", "uk", "us", "ca", "au", "de", "fr", "io", "co", "ai", "me",
	"sg", "ae", "nl", "es", "it", "br", "jp", "cn", "ch", "se", "pk",
	"ng", "za", "nz", "ie", "my", "ph", "id", "tv",
}

// longTLDs are genuine TLDs that begin with a short TLD and must not be truncated
var longTLDs = map[string]bool{
	"community": true, "company": true, "computer": true, "coach": true,
	"codes": true, "coffee": true, "college": true, "cologne": true,
	"condos": true, "construction": true, "consulting": true, "contractors": true,
	"cooking": true, "cool": true, "coop": true, "country": true,
	"coupons": true, "courses": true, "credit": true, "network": true,
	"news": true, "organization": true, "education": true, "info": true,
	"institute": true, "international": true, "media": true, "agency": true,
	"academy": true, "solutions": true, "services": true, "technology": true,
	"tech": true, "digital": true, "studio": true, "design": true,
	"software": true, "systems": true, "online": true, "careers": true,
	"capital": true, "center": true, "club": true, "cloud": true,
	"industries": true, "investments": true, "ink": true, "inc": true,
	"menu": true, "memorial": true, "museum": true, "money": true,
	"mobi": true, "app": true, "dev": true, "team": true,
	"email": true, "express": true, "estate": true, "events": true,
	"usa": true, "ventures": true, "care": true, "cafe": true,
	"camera": true, "camp": true, "cab": true, "deals": true,
	"delivery": true, "dental": true, "direct": true, "directory": true,
	"frl": true, "itau": true, "ngo": true, "seat": true, "security": true,
	"shop": true, "site": true, "space": true, "store": true,
}

// FindAll returns every email-shaped token in text, in order of appearance
func FindAll(text string) []string {
	if !strings.Contains(text, "@") {
		return nil
	}
	return candidatePattern.FindAllString(text, -1)
}

// First returns the first candidate in texts that survives Clean
func First(texts ...string) (string, bool) {
	for _, text := range texts {
		for _, candidate := range FindAll(text) {
			if email, ok := Clean(candidate); ok {
				return email, true
			}
		}
	}
	return "", false
}

// Clean normalizes a raw token into a lowercase address, or reports false when the
// token cannot be a deliverable address.
func Clean(raw string) (string, bool) {
	token := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))

	at := strings.LastIndex(token, "@")
	if at <= 0 || at == len(token)-1 {
		return "", false
	}
	if strings.HasSuffix(token, ".") {
		return "", false
	}

	dot := strings.LastIndex(token, ".")
	if dot < at {
		return "", false
	}

	base, tld := token[:dot], token[dot+1:]
	tld = trimTLD(tld)
	if tld == "" {
		return "", false
	}

	email := base + "." + tld
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.Contains(domain, "..") {
		return "", false
	}
	return email, true
}

// trimTLD returns the TLD with any glued tail removed, or "" when nothing of it survives
func trimTLD(tld string) string {
	if longTLDs[tld] {
		return tld
	}
	if cut := garbageIndex(tld); cut >= 0 {
		tld = tld[:cut]
		if tld == "" || longTLDs[tld] {
			return tld
		}
	}
	for _, short := range shortTLDs {
		if tld == short {
			return tld
		}
	}
	for _, short := range shortTLDs {
		if len(tld) > len(short) && strings.HasPrefix(tld, short) {
			return short
		}
	}
	return tld
}

// garbageIndex returns the earliest start of any garbage suffix in tld, or -1
func garbageIndex(tld string) int {
	earliest := -1
	for _, suffix := range garbageSuffixes {
		if idx := strings.Index(tld, suffix); idx >= 0 && (earliest == -1 || idx < earliest) {
			earliest = idx
		}
	}
	return earliest
}
