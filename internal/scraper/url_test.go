package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"http", "http://example.org", true},
		{"https with path", "https://example.org/contact", true},
		{"with port", "http://example.org:8080/", true},
		{"empty", "", false},
		{"relative path", "/contact", false},
		{"scheme only", "http://", false},
		{"no scheme", "example.org", false},
		{"mailto", "mailto:joe@example.org", false},
		{"tel", "tel:+15551234567", false},
		{"whitespace garbage", "http://exa mple.org", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsValidURL(tc.raw))
		})
	}
}

func TestAuthority(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.org", Authority("http://example.org/about"))
	assert.Equal(t, "example.org:8080", Authority("http://example.org:8080/about"))
	assert.Equal(t, "sub.example.org", Authority("https://sub.example.org"))
	assert.Empty(t, Authority("://bad"))
}

func TestNormalizeSite(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://example.org", NormalizeSite("  example.org "))
	assert.Equal(t, "http://example.org", NormalizeSite("http://example.org"))
	assert.Equal(t, "https://example.org", NormalizeSite("https://example.org"))
	assert.Empty(t, NormalizeSite("   "))
	assert.Empty(t, NormalizeSite(""))
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	got, ok := resolveHref("http://example.org/index.html", "/contact")
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/contact", got)

	got, ok = resolveHref("http://example.org/a/", "about")
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/a/about", got)

	got, ok = resolveHref("http://example.org", "https://other.org/contact")
	assert.True(t, ok)
	assert.Equal(t, "https://other.org/contact", got)

	_, ok = resolveHref("http://example.org", "http://exa\x7fmple.org")
	assert.False(t, ok)
}
