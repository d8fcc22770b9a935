package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/taxassist/internal/core"
)

func ollamaServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "What is VAT?", req.Input)
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}})
	})

	e := NewOllamaEmbedder(srv.URL+"/", "nomic-embed-text", 3)
	vec, err := e.Embed(context.Background(), "What is VAT?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, e.Dimension())
}

func TestOllamaEmbedderLegacyShape(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[1,2]}`))
	})

	vec, err := NewOllamaEmbedder(srv.URL, "m", 2).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[1,2]]}`))
	})

	_, err := NewOllamaEmbedder(srv.URL, "m", 768).Embed(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestOllamaEmbedderErrors(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"m\" not found, try pulling it first"}`))
	})

	_, err := NewOllamaEmbedder(srv.URL, "m", 2).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	plain := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err = NewOllamaEmbedder(plain.URL, "m", 2).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",` +
			`"data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25]}],` +
			`"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	})

	e := NewOpenAIEmbedder("sk-test", srv.URL, "text-embedding-3-small", 2)
	vec, err := e.Embed(context.Background(), "Companies tax?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, vec)
}

func TestOpenAIEmbedderDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	})

	_, err := NewOpenAIEmbedder("sk-test", srv.URL, "text-embedding-3-small", 2).Embed(context.Background(), "VAT?")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "the core never retries")
}

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{float32(len(text)), 1}, nil
}
func (c *countingEmbedder) Dimension() int { return 2 }
func (c *countingEmbedder) Model() string  { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "embed.cache")
	next := &countingEmbedder{}

	c, err := NewCachedEmbedder(next, path)
	require.NoError(t, err)

	first, err := c.Embed(ctx, "What is VAT?")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "What is VAT?")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, next.calls.Load())

	_, err = c.Embed(ctx, "Companies tax?")
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
	require.NoError(t, c.Close())

	// Entries survive a reopen.
	reopened, err := NewCachedEmbedder(next, path)
	require.NoError(t, err)
	defer reopened.Close()
	_, err = reopened.Embed(ctx, "What is VAT?")
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

// gatedEmbedder blocks until release is closed and records whether the
// context it was given had been cancelled by then.
type gatedEmbedder struct {
	started   chan struct{}
	release   chan struct{}
	calls     atomic.Int32
	cancelled atomic.Bool
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	<-g.release
	if ctx.Err() != nil {
		g.cancelled.Store(true)
		return nil, ctx.Err()
	}
	return []float32{1, 2}, nil
}
func (g *gatedEmbedder) Dimension() int { return 2 }
func (g *gatedEmbedder) Model() string  { return "gated" }

func TestCachedEmbedderCallerCancellationIsIsolated(t *testing.T) {
	next := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	c, err := NewCachedEmbedder(next, filepath.Join(t.TempDir(), "embed.cache"))
	require.NoError(t, err)
	defer c.Close()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Embed(ctxA, "What is VAT?")
		errA <- err
	}()
	<-next.started

	type result struct {
		vec []float32
		err error
	}
	resB := make(chan result, 1)
	go func() {
		vec, err := c.Embed(context.Background(), "What is VAT?")
		resB <- result{vec, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	// Give B time to join the in-flight call before it completes.
	time.Sleep(50 * time.Millisecond)
	close(next.release)

	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, []float32{1, 2}, res.vec)
	case <-time.After(2 * time.Second):
		t.Fatal("uncancelled caller never got a result")
	}
	assert.False(t, next.cancelled.Load())
}
