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
	"github.com/hunterwarburton/taxassist/internal/ingest"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "config.yaml", "Path to optional YAML config")
	initSchema := flag.Bool("init", false, "Create the store schema and index if missing")
	reset := flag.Bool("reset", false, "Drop all stored documents and recreate the schema")
	file := flag.String("file", "", "JSON document to ingest: {\"name\": ..., \"chunks\": [...]}")
	deleteID := flag.String("delete", "", "Delete the document with this id")
	workers := flag.Int("workers", 4, "Concurrent embedding requests")
	flag.Parse()

	logger.Init(*debug)
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *initSchema, *reset, *file, *deleteID, *workers); err != nil {
		logger.Error("%v", err)
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, initSchema, reset bool, file, deleteID string, workers int) error {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if reset {
		if err := store.Reset(ctx); err != nil {
			return err
		}
		initSchema = true
	}
	if initSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		logger.Info("Store %s ready", cfg.Retrieval.Store)
	}

	if deleteID != "" {
		if err := store.DeleteDocument(ctx, deleteID); err != nil {
			return err
		}
		logger.Info("Deleted document %s", deleteID)
	}

	if file == "" {
		return nil
	}

	doc, err := ingest.LoadDocument(file)
	if err != nil {
		return err
	}
	embedder, closer, err := app.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	id, err := ingest.Ingest(ctx, embedder, store, doc, workers)
	if err != nil {
		return err
	}
	logger.Info("Ingested %q with %d chunks, document id %s", doc.Name, len(doc.Chunks), id)
	return nil
}
