package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hunterwarburton/taxassist/internal/app"
	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/logger"
	"github.com/hunterwarburton/taxassist/internal/server"
	"github.com/hunterwarburton/taxassist/internal/telegram"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "config.yaml", "Path to optional YAML config")
	flag.Parse()

	// Load environment variables from .env file
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init(*debug)
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Init(*debug || cfg.Debug)
	defer logger.Sync()

	if envErr != nil {
		logger.Info("No .env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	api := server.New(cfg.API, server.Deps{
		Answerer: a.Pipeline,
		Store:    a.Store,
		LLM:      a.Generator,
		History:  a.History,
		Metrics:  a.Metrics,
		Gatherer: a.Registry,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Run(gctx) })

	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token, a.Pipeline, a.History, a.Metrics, cfg.API.RequestTimeout)
		if err != nil {
			logger.Error("Failed to initialize Telegram bot: %v", err)
			os.Exit(1)
		}
		g.Go(func() error {
			bot.Start(gctx)
			return nil
		})
	} else {
		logger.Info("TG_BOT_TOKEN not set, Telegram channel disabled")
	}

	logger.Info("Nigerian Tax Assistant serving on %s", api)
	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Info("Shut down cleanly")
}
