package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethanbaker/ragchat/internal/api"
	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/utils"
)

// Start the chat API and realtime gateway
func main() {
	// Find env file
	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}

	// Load global config
	cfg := utils.NewConfigFromEnv(envFile)

	logger := logging.New(cfg.Get("LOG_LEVEL"), os.Stderr)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(logging.With(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := api.Start(ctx, cfg); err != nil {
		logger.Error("api exited", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("api stopped")
}
