package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethanbaker/ragchat/internal/bootstrap"
	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/news"
	"github.com/ethanbaker/ragchat/pkg/utils"
)

// Run one news ingestion against the configured vector index
func main() {
	feedsFile := flag.String("feeds", "", "feeds YAML file (defaults to NEWS_FEEDS_FILE)")
	flag.Parse()

	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}
	cfg := utils.NewConfigFromEnv(envFile)

	logger := logging.New(cfg.Get("LOG_LEVEL"), os.Stderr)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(logging.With(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := *feedsFile
	if path == "" {
		path = cfg.Get("NEWS_FEEDS_FILE")
	}
	if path == "" {
		logger.Error("no feeds file, pass -feeds or set NEWS_FEEDS_FILE")
		os.Exit(2)
	}

	feeds, err := news.LoadFeeds(path)
	if err != nil {
		logger.Error("failed to load feeds", "error", err)
		os.Exit(1)
	}

	index := bootstrap.NewIndex(cfg)
	if err := index.EnsureCollection(ctx); err != nil {
		logger.Error("failed to prepare vector collection", "error", err)
		os.Exit(1)
	}

	embedder, err := bootstrap.NewEmbedder(ctx, cfg)
	if err != nil {
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	stats, err := news.NewIngester(news.NewFetcher(nil), embedder, index).Ingest(ctx, feeds)
	if err != nil {
		logger.Error("ingestion failed", "error", err)
		os.Exit(1)
	}

	logger.Info("ingestion finished",
		"feeds", stats.Feeds,
		"failed_feeds", stats.FailedFeeds,
		"articles", stats.Articles,
		"indexed", stats.Indexed,
	)
}
