package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/embed"
	"github.com/hunterwarburton/taxassist/internal/history"
	"github.com/hunterwarburton/taxassist/internal/llm"
	"github.com/hunterwarburton/taxassist/internal/logger"
	"github.com/hunterwarburton/taxassist/internal/metrics"
	"github.com/hunterwarburton/taxassist/internal/pipeline"
	"github.com/hunterwarburton/taxassist/internal/rag"
)

// App holds every long-lived component built from one Config.
type App struct {
	Config    *config.Config
	Store     rag.Store
	Embedder  core.Embedder
	Generator *llm.Generator
	Pipeline  *pipeline.Pipeline
	History   *history.Log
	Metrics   *metrics.Recorder
	Registry  *prometheus.Registry

	closers []io.Closer
}

// OpenStore connects the configured vector store.
func OpenStore(ctx context.Context, cfg *config.Config) (rag.Store, error) {
	dim := cfg.Embedding.Dimension
	switch cfg.Retrieval.Store {
	case config.StorePGVector:
		return rag.OpenPGVector(ctx, cfg.Postgres.DSN(), dim)
	case config.StoreMilvus:
		return rag.NewMilvusStore(ctx, cfg.Milvus.Address(), cfg.Milvus.Collection, dim)
	case config.StoreSQLite:
		return rag.OpenSQLite(ctx, cfg.SQLite.Path, dim)
	case config.StoreMemory:
		return rag.NewMemoryStore(dim), nil
	default:
		return nil, &core.ConfigurationError{Field: "retrieval.store", Reason: fmt.Sprintf("unknown store %q", cfg.Retrieval.Store)}
	}
}

// NewEmbedder builds the configured embedder, wrapped in the bbolt cache
// when a cache path is set. The returned closer may be nil.
func NewEmbedder(cfg *config.Config) (core.Embedder, io.Closer, error) {
	var e embed.ModelEmbedder
	switch cfg.Embedding.Provider {
	case config.EmbedOllama:
		host := cfg.Embedding.BaseURL
		if host == "" {
			host = cfg.Generation.OllamaHost
		}
		e = embed.NewOllamaEmbedder(host, cfg.Embedding.Model, cfg.Embedding.Dimension)
	case config.EmbedOpenAI:
		e = embed.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension)
	default:
		return nil, nil, &core.ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Embedding.Provider)}
	}
	logger.RAGInfo("Embedding with %s (%d dimensions)", e.Model(), e.Dimension())

	if cfg.Embedding.CachePath == "" {
		return e, nil, nil
	}
	cached, err := embed.NewCachedEmbedder(e, cfg.Embedding.CachePath)
	if err != nil {
		return nil, nil, err
	}
	logger.RAGInfo("Embedding cache at %s", cfg.Embedding.CachePath)
	return cached, cached, nil
}

// Build validates cfg and wires the store, embedder, generator, pipeline,
// question log and metrics. Close releases everything Build opened.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewRecorder(a.Registry)

	var err error
	if a.Store, err = OpenStore(ctx, cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store)

	var cache io.Closer
	if a.Embedder, cache, err = NewEmbedder(cfg); err != nil {
		a.Close()
		return nil, err
	}
	if cache != nil {
		a.closers = append(a.closers, cache)
	}

	if a.Generator, err = llm.NewGeneratorFromConfig(cfg.Generation); err != nil {
		a.Close()
		return nil, err
	}

	a.Pipeline, err = pipeline.New(ctx, a.Embedder, a.Store, a.Generator, pipeline.Options{
		TopK:              cfg.Retrieval.TopK,
		DefaultMaxLength:  cfg.Answer.MaxLength,
		MinSentenceLength: cfg.Answer.MinSentenceLength,
		LiteralChunkCount: cfg.Retrieval.ChunksFound == config.ChunksFoundLiteral,
	}, logger.Named("pipeline"))
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.History.Path != "" {
		if a.History, err = history.Open(ctx, cfg.History.Path); err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.History)
	}

	logger.Info("Pipeline ready: store=%s provider=%s top_k=%d max_length=%d",
		cfg.Retrieval.Store, a.Generator.Provider(), cfg.Retrieval.TopK, cfg.Answer.MaxLength)
	return a, nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
