package news

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/vector"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Source yields the articles of a feed
type Source interface {
	Fetch(ctx context.Context, url string) ([]Article, error)
}

// Stats summarises one ingestion run
type Stats struct {
	Feeds       int `json:"feeds"`
	FailedFeeds int `json:"failedFeeds"`
	Articles    int `json:"articles"`
	Indexed     int `json:"indexed"`
	Skipped     int `json:"skipped"`
}

// Ingester embeds feed articles and writes them to the vector index
type Ingester struct {
	source   Source
	embedder Embedder
	index    vector.Index
}

// NewIngester creates an Ingester
func NewIngester(source Source, embedder Embedder, index vector.Index) *Ingester {
	return &Ingester{source: source, embedder: embedder, index: index}
}

// Ingest processes every feed. A failing feed or article is logged and
// counted; the run only fails when every feed failed or ctx is done
func (i *Ingester) Ingest(ctx context.Context, feeds []Feed) (Stats, error) {
	logger := logging.From(ctx)
	stats := Stats{Feeds: len(feeds)}

	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return stats, goerr.Wrap(err, "ingestion cancelled")
		}

		indexed, total, err := i.ingestFeed(ctx, feed)
		stats.Articles += total
		stats.Indexed += indexed
		stats.Skipped += total - indexed
		if err != nil {
			stats.FailedFeeds++
			logger.Warn("failed to ingest feed", "feed", feed.Name, "error", err)
			continue
		}

		logger.Info("ingested feed", "feed", feed.Name, "articles", total, "indexed", indexed)
	}

	if stats.Feeds > 0 && stats.FailedFeeds == stats.Feeds {
		return stats, goerr.New("every feed failed", goerr.V("feeds", stats.Feeds))
	}
	return stats, nil
}

func (i *Ingester) ingestFeed(ctx context.Context, feed Feed) (int, int, error) {
	articles, err := i.source.Fetch(ctx, feed.URL)
	if err != nil {
		return 0, 0, err
	}

	vectors := make([][]float32, 0, len(articles))
	payloads := make([]vector.Payload, 0, len(articles))
	for _, a := range articles {
		vec, err := i.embedder.Embed(ctx, a.Title+"\n"+a.Content)
		if err != nil || len(vec) == 0 {
			logging.From(ctx).Debug("skipping article", "url", a.URL, "error", err)
			continue
		}

		payload := vector.Payload{
			"content": a.Title + "\n" + a.Content,
			"kind":    "article",
			"title":   a.Title,
			"url":     a.URL,
			"source":  feed.Name,
		}
		if !a.Published.IsZero() {
			payload["published_at"] = a.Published.Format(time.RFC3339)
		}

		vectors = append(vectors, vec)
		payloads = append(payloads, payload)
	}

	if len(vectors) == 0 {
		return 0, len(articles), nil
	}

	if _, err := i.index.Upsert(ctx, vectors, payloads); err != nil {
		return 0, len(articles), goerr.Wrap(err, "failed to index articles", goerr.V("feed", feed.Name))
	}
	return len(vectors), len(articles), nil
}
