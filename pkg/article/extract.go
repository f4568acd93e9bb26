// Package article fetches a web page and pulls out its readable body text.
package article

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultSelectors are tried in order; the first match with text wins
var DefaultSelectors = []string{
	"article",
	`div[itemprop="articleBody"]`,
	`div[class*="content"]`,
	"div.article-content",
	"section.post-content",
}

const userAgent = "Mozilla/5.0 (compatible; ragchat/1.0)"

// Extractor downloads pages and extracts the article body
type Extractor struct {
	client    *http.Client
	selectors []string
	maxBytes  int64
}

// Option configures an Extractor
type Option func(*Extractor)

// WithTimeout bounds each page download
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithSelectors replaces the candidate CSS selectors
func WithSelectors(selectors ...string) Option {
	return func(e *Extractor) {
		if len(selectors) > 0 {
			e.selectors = selectors
		}
	}
}

// NewExtractor creates an Extractor with a 10 second download timeout
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		client:    &http.Client{Timeout: 10 * time.Second},
		selectors: DefaultSelectors,
		maxBytes:  5 << 20,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract downloads url and returns its article text. An empty string with a
// nil error means the page loaded but no selector matched any text
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to build article request", goerr.V("url", url))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to fetch article", goerr.V("url", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", goerr.New("article fetch returned non-2xx status",
			goerr.V("url", url),
			goerr.V("status", resp.StatusCode),
		)
	}

	return e.ExtractFrom(io.LimitReader(resp.Body, e.maxBytes))
}

// ExtractFrom parses an HTML document and returns its article text
func (e *Extractor) ExtractFrom(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse article html")
	}

	doc.Find("script, style, noscript").Remove()

	for _, sel := range e.selectors {
		if text := CollapseWhitespace(matchedText(doc, sel)); text != "" {
			return text, nil
		}
	}

	return "", nil
}

// matchedText joins the text of every element matching sel. Matches nested
// inside another match are skipped so their text is not repeated
func matchedText(doc *goquery.Document, sel string) string {
	outer := doc.Find(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(sel).Length() == 0
	})
	return strings.Join(outer.Map(func(_ int, s *goquery.Selection) string {
		return s.Text()
	}), " ")
}

// CollapseWhitespace joins all runs of whitespace into single spaces
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
