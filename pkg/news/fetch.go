package news

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/mmcdole/gofeed"

	"github.com/ethanbaker/ragchat/pkg/article"
)

// Article is a single feed item reduced to plain text
type Article struct {
	Title     string
	Content   string
	URL       string
	Source    string
	Published time.Time
}

// Fetcher downloads and parses feeds
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a Fetcher using client, or a 20 second timeout client when nil
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "ragchat-news/1.0"

	return &Fetcher{parser: parser}
}

// Fetch returns the items of the feed at url
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Article, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse feed", goerr.V("url", url))
	}

	articles := make([]Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		a := Article{
			Title:   strings.TrimSpace(item.Title),
			Content: snippet(item),
			URL:     item.Link,
			Source:  feed.Title,
		}
		if item.PublishedParsed != nil {
			a.Published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			a.Published = item.UpdatedParsed.UTC()
		}

		if a.Title == "" && a.Content == "" {
			continue
		}
		articles = append(articles, a)
	}

	return articles, nil
}

// snippet is the item's description, or its full content, as plain text
func snippet(item *gofeed.Item) string {
	for _, raw := range []string{item.Description, item.Content} {
		if text := stripHTML(raw); text != "" {
			return text
		}
	}
	return ""
}

func stripHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return article.CollapseWhitespace(raw)
	}
	return article.CollapseWhitespace(doc.Text())
}
