package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hunterwarburton/taxassist/internal/app"
	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/logger"
	"github.com/hunterwarburton/taxassist/internal/telegram"
)

func main() {
	// Parse command line flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "config.yaml", "Path to optional YAML config")
	flag.Parse()

	// Initialize logger
	logger.Init(*debug)
	defer logger.Sync()

	logger.Info("Starting bot...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Info("Warning: No .env file found or error loading it")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if logger.IsDebugEnabled() {
		logger.Debug("Configuration loaded: TelegramToken=%v, Store=%s, ChatModel=%s, UseHosted=%v",
			cfg.Telegram.Token != "", cfg.Retrieval.Store, cfg.Generation.ChatModel, cfg.Generation.UseHosted())
	}

	// Validate required settings
	if cfg.Telegram.Token == "" {
		logger.Error("TG_BOT_TOKEN environment variable is required")
		os.Exit(1)
	}

	// Cancelled on SIGINT/SIGTERM; the bot stops polling when it is.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Initializing services...")
	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize services: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	bot, err := telegram.NewBot(cfg.Telegram.Token, a.Pipeline, a.History, a.Metrics, cfg.API.RequestTimeout)
	if err != nil {
		logger.Error("Failed to initialize Telegram bot: %v", err)
		os.Exit(1)
	}

	bot.Start(ctx)
	logger.Info("Bot has been shut down")
}
