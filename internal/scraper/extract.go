package scraper

import (
	"regexp"
	"sort"
	"strings"
)

// emailPattern matches local@domain.tld candidates; every candidate still has
// to pass the FilterConfig checks before it is accepted.
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

const maxEmailLength = 255

// FilterConfig holds the blocklists applied after the regex match. The lists
// are supplied by configuration so the extractor stays a pure function over
// explicit inputs.
type FilterConfig struct {
	// ImageExtensions rejects candidates whose surrounding text token
	// contains an image file suffix. Matching the token rather than the bare
	// candidate catches asset paths like logo@site.com/pic.png, where the
	// suffix sits past the end of the regex match.
	ImageExtensions []string
	// PlaceholderDomains rejects template and tooling addresses such as
	// example.com or sentry.io ingest endpoints.
	PlaceholderDomains []string
}

// DefaultImageExtensions is the stock image-suffix blocklist.
func DefaultImageExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp", ".tiff"}
}

// DefaultPlaceholderDomains is the stock placeholder-domain blocklist.
func DefaultPlaceholderDomains() []string {
	return []string{"example.com", "yourdomain.com", "email@domain.com", "sentry.io"}
}

// EmailExtractor finds plausible contact emails in page text.
type EmailExtractor struct {
	filters FilterConfig
}

// NewEmailExtractor builds an extractor with the provided filters. Empty
// lists fall back to the defaults.
func NewEmailExtractor(filters FilterConfig) *EmailExtractor {
	if len(filters.ImageExtensions) == 0 {
		filters.ImageExtensions = DefaultImageExtensions()
	}
	if len(filters.PlaceholderDomains) == 0 {
		filters.PlaceholderDomains = DefaultPlaceholderDomains()
	}
	return &EmailExtractor{filters: filters}
}

// Extract returns the deduplicated set of lowercase emails found in text.
func (x *EmailExtractor) Extract(text string) map[string]struct{} {
	found := make(map[string]struct{})
	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		email := strings.ToLower(text[loc[0]:loc[1]])
		token := strings.ToLower(tokenAround(text, loc[0], loc[1]))
		if x.accept(email, token) {
			found[email] = struct{}{}
		}
	}
	return found
}

// tokenAround widens a match to the whitespace-delimited token containing it.
func tokenAround(text string, start, end int) string {
	for start > 0 && !isTokenBoundary(text[start-1]) {
		start--
	}
	for end < len(text) && !isTokenBoundary(text[end]) {
		end++
	}
	return text[start:end]
}

func isTokenBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func (x *EmailExtractor) accept(email, token string) bool {
	for _, ext := range x.filters.ImageExtensions {
		if strings.Contains(token, ext) {
			return false
		}
	}
	for _, pattern := range x.filters.PlaceholderDomains {
		if strings.Contains(email, pattern) {
			return false
		}
	}
	if len(email) > maxEmailLength || strings.Contains(email, " ") {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	domain := email[strings.Index(email, "@")+1:]
	if !strings.Contains(domain, ".") {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels[len(labels)-1]) < 2 {
		return false
	}
	if strings.HasPrefix(email, "'") || strings.HasSuffix(email, "'") ||
		strings.HasPrefix(email, `"`) || strings.HasSuffix(email, `"`) {
		return false
	}
	return true
}

// JoinEmails renders a collected set as a comma-joined sorted list.
func JoinEmails(emails map[string]struct{}) string {
	sorted := make([]string, 0, len(emails))
	for email := range emails {
		sorted = append(sorted, email)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
