package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/email-harvester/internal/metrics"
)

// DefaultTargetKeywords is the stock list used to spot contact/about pages
// worth one extra hop from the seed.
func DefaultTargetKeywords() []string {
	return []string{"about", "contact", "support", "contact-us", "about-us", "contactus", "aboutus"}
}

// EngineConfig controls one engine instance. The same engine is shared by
// every runner; per-site state lives on the stack of ScrapeSite.
type EngineConfig struct {
	// HopLimit bounds traversal depth past the seed page. The engine only
	// ever discovers links on the seed itself, so values above 1 do not
	// widen the crawl; 0 disables link discovery entirely.
	HopLimit int
	// Delay is the fixed pacing sleep applied before every fetch.
	Delay time.Duration
	// TargetKeywords classify anchors as target-page candidates when found
	// in the lowercased href or link text.
	TargetKeywords []string
}

// Engine performs the bounded breadth-first crawl of a single site.
type Engine struct {
	fetcher   Fetcher
	extractor *EmailExtractor
	cfg       EngineConfig
	logger    *zap.Logger
}

// NewEngine builds an Engine. Empty keyword lists fall back to the defaults.
func NewEngine(fetcher Fetcher, extractor *EmailExtractor, cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.TargetKeywords) == 0 {
		cfg.TargetKeywords = DefaultTargetKeywords()
	}
	return &Engine{
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

type frontierItem struct {
	url   string
	depth int
}

// ScrapeSite crawls baseURL breadth-first up to the hop limit and returns the
// set of emails collected. Per-page failures are logged to the sink and never
// abort the crawl.
func (e *Engine) ScrapeSite(ctx context.Context, baseURL string, sink Sink) map[string]struct{} {
	collected := make(map[string]struct{})
	if !IsValidURL(baseURL) {
		sink.Log(fmt.Sprintf("Skipping invalid base URL: %s", baseURL))
		return collected
	}

	visited := make(map[string]struct{})
	frontier := []frontierItem{{url: baseURL, depth: 0}}
	baseDomain := Authority(baseURL)

	sink.Log(fmt.Sprintf("Starting scrape for: %s with depth %d", baseURL, e.cfg.HopLimit))

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		if _, seen := visited[current.url]; seen {
			continue
		}
		if !IsValidURL(current.url) || Authority(current.url) != baseDomain {
			continue
		}
		visited[current.url] = struct{}{}

		pageType := "Homepage"
		if current.depth > 0 {
			pageType = "Target Page"
		}
		sink.Log(fmt.Sprintf("Scraping (%s): %s", pageType, current.url))

		e.pause(ctx)
		start := time.Now()
		page, err := e.fetcher.Fetch(ctx, current.url)
		if err != nil {
			metrics.ObservePageFetch("error")
			sink.Log(fmt.Sprintf("  Error scraping %s: %s", current.url, err))
			continue
		}
		metrics.ObservePageFetch("ok")
		e.logger.Debug("page fetched",
			zap.String("url", current.url),
			zap.Int("depth", current.depth),
			zap.Duration("dur", time.Since(start)),
		)

		text := e.pageTextWithMailtos(current.url, page, sink)
		emails := e.extractor.Extract(text)
		if len(emails) > 0 {
			metrics.ObserveEmailsFound(len(emails))
			sink.Log(fmt.Sprintf("  Found emails: %s on %s", JoinEmails(emails), current.url))
			for email := range emails {
				collected[email] = struct{}{}
			}
		}

		// Link discovery intentionally runs on the seed page only; target
		// pages are harvested but never expanded further.
		if current.depth == 0 && e.cfg.HopLimit >= 1 {
			frontier = e.discoverTargets(current, page, baseDomain, visited, frontier, sink)
		}
	}
	return collected
}

// pageTextWithMailtos appends the address segment of every mailto anchor to
// the page text so the extractor sees them as plain tokens.
func (e *Engine) pageTextWithMailtos(pageURL string, page Page, sink Sink) string {
	var b strings.Builder
	b.WriteString(page.Text)
	for _, anchor := range page.Anchors {
		if !strings.HasPrefix(anchor.Href, "mailto:") {
			continue
		}
		addr := strings.TrimPrefix(anchor.Href, "mailto:")
		if idx := strings.Index(addr, "?"); idx >= 0 {
			addr = addr[:idx]
		}
		if addr == "" {
			sink.Log(fmt.Sprintf("Warning: Malformed mailto link on %s: %s", pageURL, anchor.Href))
			continue
		}
		b.WriteString(" ")
		b.WriteString(addr)
	}
	return b.String()
}

func (e *Engine) discoverTargets(
	current frontierItem,
	page Page,
	baseDomain string,
	visited map[string]struct{},
	frontier []frontierItem,
	sink Sink,
) []frontierItem {
	sink.Log(fmt.Sprintf("  Searching for target pages on %s...", current.url))
	queuedAny := false
	for _, anchor := range page.Anchors {
		if anchor.Href == "" || !e.isTargetLink(anchor) {
			continue
		}
		next, ok := resolveHref(current.url, anchor.Href)
		if !ok {
			continue
		}
		if Authority(next) != baseDomain || !IsValidURL(next) {
			continue
		}
		if _, seen := visited[next]; seen {
			continue
		}
		if frontierContains(frontier, next) {
			continue
		}
		frontier = append(frontier, frontierItem{url: next, depth: current.depth + 1})
		sink.Log(fmt.Sprintf("    Queued target page: %s", next))
		queuedAny = true
	}
	if !queuedAny {
		sink.Log(fmt.Sprintf("  No new target pages found or queued from %s.", current.url))
	}
	return frontier
}

func (e *Engine) isTargetLink(anchor Anchor) bool {
	href := strings.ToLower(anchor.Href)
	text := strings.ToLower(anchor.Text)
	for _, keyword := range e.cfg.TargetKeywords {
		if strings.Contains(href, keyword) || strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// pause blocks for the configured delay or until the context ends.
func (e *Engine) pause(ctx context.Context) {
	if e.cfg.Delay <= 0 {
		return
	}
	timer := time.NewTimer(e.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func frontierContains(frontier []frontierItem, url string) bool {
	for _, item := range frontier {
		if item.url == url {
			return true
		}
	}
	return false
}
