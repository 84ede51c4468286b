// Package goqueryparser extracts listing entries from fetched HTML.
package goqueryparser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
)

// Config tunes entry selection.
type Config struct {
	// EntrySelector overrides the default candidate selectors when a site
	// has a known markup shape.
	EntrySelector string
	// MaxEntries caps how many entries a single page may yield. Zero means
	// unlimited.
	MaxEntries int
}

// Parser implements crawler.ListingParser on top of goquery.
type Parser struct {
	cfg Config
}

// candidate selectors tried in order until one yields entries.
var defaultEntrySelectors = []string{
	"li a[href]",
	"article a[href]",
	".item a[href]",
	".product a[href]",
	"td a[href]",
}

var nextPageTexts = map[string]struct{}{
	"next":   {},
	"next »": {},
	"»":      {},
	"›":      {},
	">":      {},
	"older":  {},
}

// New builds a Parser.
func New(cfg Config) *Parser {
	return &Parser{cfg: cfg}
}

// Parse extracts entries and the next-page link from one listing page.
// Relative hrefs are resolved against pageURL.
func (p *Parser) Parse(pageURL string, body []byte) (crawler.Listing, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("parse listing html: %w", err)
	}

	listing := crawler.Listing{
		Entries:     p.extractEntries(doc, base),
		NextPageURL: extractNextPage(doc, base),
	}
	return listing, nil
}

func (p *Parser) extractEntries(doc *goquery.Document, base *url.URL) []crawler.ListingEntry {
	selectors := defaultEntrySelectors
	if p.cfg.EntrySelector != "" {
		selectors = []string{p.cfg.EntrySelector}
	}
	for _, selector := range selectors {
		entries := p.collect(doc, base, selector)
		if len(entries) > 0 {
			return entries
		}
	}
	return nil
}

func (p *Parser) collect(doc *goquery.Document, base *url.URL, selector string) []crawler.ListingEntry {
	var entries []crawler.ListingEntry
	seen := make(map[string]struct{})

	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if p.cfg.MaxEntries > 0 && len(entries) >= p.cfg.MaxEntries {
			return false
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		resolved := resolveHref(base, href)
		if resolved == "" {
			return true
		}
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return true
		}
		if isNextPageLabel(title) {
			return true
		}
		if _, dup := seen[resolved]; dup {
			return true
		}
		seen[resolved] = struct{}{}
		entries = append(entries, crawler.ListingEntry{
			Title: title,
			URL:   resolved,
		})
		return true
	})
	return entries
}

func extractNextPage(doc *goquery.Document, base *url.URL) string {
	if href, ok := doc.Find(`a[rel="next"]`).First().Attr("href"); ok {
		return resolveHref(base, href)
	}

	var next string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !isNextPageLabel(sel.Text()) {
			return true
		}
		if href, ok := sel.Attr("href"); ok {
			next = resolveHref(base, href)
			return false
		}
		return true
	})
	return next
}

func isNextPageLabel(text string) bool {
	_, ok := nextPageTexts[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
