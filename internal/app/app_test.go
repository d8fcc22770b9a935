package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/embed"
	"github.com/hunterwarburton/taxassist/internal/llm"
	"github.com/hunterwarburton/taxassist/internal/rag"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Retrieval.Store = config.StoreMemory
	cfg.Embedding.Dimension = 4
	return cfg
}

func TestBuildMemory(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Embedding.CachePath = filepath.Join(dir, "embed.cache")
	cfg.History.Path = filepath.Join(dir, "history.db")

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &rag.MemoryStore{}, a.Store)
	assert.IsType(t, &embed.CachedEmbedder{}, a.Embedder)
	assert.Equal(t, llm.ProviderOllama, a.Pipeline.Provider())
	assert.NotNil(t, a.History)
	assert.NotNil(t, a.Metrics)
}

func TestBuildSelectsGroqInCloud(t *testing.T) {
	cfg := testConfig(t)
	cfg.Generation.CloudEnvironment = true

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, llm.ProviderGroq, a.Generator.Provider())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Model = ""

	_, err := Build(context.Background(), cfg)
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBuildRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")

	// The store file was created for 3-dimensional vectors.
	s, err := rag.OpenSQLite(ctx, path, 3)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg := testConfig(t)
	cfg.Retrieval.Store = config.StoreSQLite
	cfg.SQLite.Path = path

	_, err = Build(ctx, cfg)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestOpenStoreUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.Store = "redis"
	_, err := OpenStore(context.Background(), cfg)
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewEmbedderProviders(t *testing.T) {
	cfg := testConfig(t)

	e, closer, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &embed.OllamaEmbedder{}, e)

	cfg.Embedding.Provider = config.EmbedOpenAI
	e, _, err = NewEmbedder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &embed.OpenAIEmbedder{}, e)
	assert.Equal(t, 4, e.Dimension())

	cfg.Embedding.Provider = "bge"
	_, _, err = NewEmbedder(cfg)
	assert.Error(t, err)
}
