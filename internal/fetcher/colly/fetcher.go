// Package collyfetcher implements scraper.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/JakeFAU/email-harvester/internal/scraper"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher fetches one page per call through a cloned Colly collector,
// following redirects and bounding each request with the configured timeout.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:       cfg,
		transport: transport,
		base:      c,
	}
}

// Fetch executes a single HTTP GET and parses the document into a Page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (scraper.Page, error) {
	var (
		page     scraper.Page
		fetchErr error
	)
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		page.FinalURL = e.Request.URL.String()
		page.Text = visibleText(e.DOM)
		e.DOM.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			page.Anchors = append(page.Anchors, scraper.Anchor{
				Href: strings.TrimSpace(href),
				Text: sel.Text(),
			})
		})
	})
	collector.OnResponse(func(r *colly.Response) {
		if page.FinalURL == "" {
			page.FinalURL = r.Request.URL.String()
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return scraper.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return scraper.Page{}, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return scraper.Page{}, fmt.Errorf("fetch failed: %w", fetchErr)
		}
		return page, nil
	}
}

// visibleText walks the document tree collecting text nodes, skipping
// non-rendered elements, with runs of whitespace collapsed to single spaces
// so tokens from adjacent elements never concatenate.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		collectText(node, &b)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ scraper.Fetcher = (*Fetcher)(nil)
