package scraper

import (
	"net/url"
	"strings"
)

// IsValidURL reports whether raw parses into an absolute address with a
// non-empty scheme and authority, excluding mailto and tel links. It performs
// no network access.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme == "" || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "mailto", "tel":
		return false
	}
	return true
}

// Authority returns the host (and optional port) component of raw, or the
// empty string when raw does not parse.
func Authority(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// NormalizeSite prepares one submitted site input for crawling: whitespace is
// trimmed and inputs lacking a scheme are prefixed with http://. An empty
// input stays empty.
func NormalizeSite(raw string) string {
	site := strings.TrimSpace(raw)
	if site == "" {
		return ""
	}
	if !strings.HasPrefix(site, "http://") && !strings.HasPrefix(site, "https://") {
		site = "http://" + site
	}
	return site
}

// resolveHref resolves href against the page it was found on. It returns the
// absolute form and false when either side does not parse.
func resolveHref(pageURL, href string) (string, bool) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
