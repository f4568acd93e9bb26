package rag

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ethanbaker/ragchat/pkg/logging"
)

// ArticlePlaceholder replaces a URL in the query once its content is in context
const ArticlePlaceholder = "[article content]"

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// FindURLs returns the absolute http(s) URLs in text, in order of appearance
func FindURLs(text string) []string {
	var urls []string
	for _, candidate := range urlPattern.FindAllString(text, -1) {
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		urls = append(urls, candidate)
	}
	return urls
}

// EnrichWithArticles fetches every URL in query. A fetched article is
// prepended to retrieved and its URL in the query is swapped for a
// placeholder; a failed fetch appends a note to the query instead. A nil
// extractor treats every URL as failed
func EnrichWithArticles(ctx context.Context, extractor ArticleExtractor, query, retrieved string, timeout time.Duration) (string, string) {
	for _, link := range FindURLs(query) {
		text, err := extract(ctx, extractor, link, timeout)
		if err != nil || text == "" {
			if err != nil {
				logging.From(ctx).Warn("failed to retrieve article", "url", link, "error", err)
			}
			query += " (Note: Could not retrieve content from " + link + ")"
			continue
		}

		retrieved = "Article Content from " + link + ":\n" + text + "\n\n" + retrieved
		query = strings.Replace(query, link, ArticlePlaceholder, 1)
	}

	return query, retrieved
}

func extract(ctx context.Context, extractor ArticleExtractor, link string, timeout time.Duration) (string, error) {
	if extractor == nil {
		return "", nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := extractor.Extract(ctx, link)
	return strings.TrimSpace(text), err
}

// BuildPrompt assembles the prompt sent to the generator
func BuildPrompt(retrieved, query string) string {
	return "Context:\n" + retrieved + "\n\nQuestion: " + query
}
