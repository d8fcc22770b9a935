package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/core"
)

var testOpts = ChatOptions{Temperature: 0.3, MaxTokens: 200}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestSystemPromptSubstitutesKnowledge(t *testing.T) {
	got := NewPromptGenerator().GenerateSystemPrompt("VAT is charged at 7.5%.")
	assert.True(t, strings.HasPrefix(got, "You are a Nigerian tax assistant."))
	assert.True(t, strings.HasSuffix(got, "Available Knowledge:\n\nVAT is charged at 7.5%."))
	assert.NotContains(t, got, KnowledgePlaceholder)
	assert.Contains(t, got, "1. Answer in ONE complete sentence")
}

func TestLoadPromptGenerator(t *testing.T) {
	dir := t.TempDir()

	pg, err := LoadPromptGenerator("")
	require.NoError(t, err)
	assert.Equal(t, RespondToMessageSystemPrompt, pg.template)

	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("Answer briefly.\n{{knowledge}}"), 0o600))
	pg, err = LoadPromptGenerator(good)
	require.NoError(t, err)
	assert.Equal(t, "Answer briefly.\nctx", pg.GenerateSystemPrompt("ctx"))

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("no placeholder"), 0o600))
	_, err = LoadPromptGenerator(bad)
	assert.Error(t, err)

	_, err = LoadPromptGenerator(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestOllamaBackendComplete(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 0.3, req.Options.Temperature)
		assert.Equal(t, 200, req.Options.NumPredict)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: "assistant", Content: "VAT in Nigeria is 7.5%."},
			Done:    true,
		})
	})

	b := NewOllamaBackend(srv.URL, "llama3.2")
	text, err := b.Complete(context.Background(), []Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "What is VAT?"},
	}, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "VAT in Nigeria is 7.5%.", text)
}

func TestOllamaBackendErrors(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'llama3.2' not found"}`))
	})
	_, err := NewOllamaBackend(srv.URL, "llama3.2").Complete(context.Background(), nil, testOpts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	garbage := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	_, err = NewOllamaBackend(garbage.URL, "llama3.2").Complete(context.Background(), nil, testOpts)
	assert.Error(t, err)
}

func TestOllamaBackendHealth(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	})
	assert.Equal(t, "ollama:connected", NewOllamaBackend(srv.URL, "m").Health(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	assert.Equal(t, "ollama:disconnected", NewOllamaBackend(url, "m").Health(context.Background()))
}

func TestGroqBackendComplete(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-3.1-8b-instant", body["model"])
		assert.Equal(t, 0.3, body["temperature"])
		assert.EqualValues(t, 200, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"llama-3.1-8b-instant",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Companies pay 30% tax on profits."}}],` +
			`"usage":{"prompt_tokens":10,"completion_tokens":8,"total_tokens":18}}`))
	})

	b := NewGroqBackend("gsk-test", srv.URL, "llama-3.1-8b-instant")
	text, err := b.Complete(context.Background(), []Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "Companies tax?"},
	}, testOpts)
	require.NoError(t, err)
	assert.Equal(t, "Companies pay 30% tax on profits.", text)
}

func TestGroqBackendAuthFailure(t *testing.T) {
	calls := 0
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := NewGroqBackend("bad", srv.URL, "m").Complete(context.Background(), nil, testOpts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1, calls, "the core never retries")
}

func TestGroqBackendHealth(t *testing.T) {
	assert.Equal(t, "groq:configured", NewGroqBackend("k", "http://unused", "m").Health(context.Background()))
	assert.Equal(t, "groq:not_configured", NewGroqBackend("", "http://unused", "m").Health(context.Background()))
}

type stubBackend struct {
	text     string
	err      error
	messages []Message
	opts     ChatOptions
}

func (s *stubBackend) Name() string { return "stub" }
func (s *stubBackend) Complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	s.messages, s.opts = messages, opts
	return s.text, s.err
}
func (s *stubBackend) Health(ctx context.Context) string { return "stub:ok" }

func TestGeneratorBuildsMessages(t *testing.T) {
	stub := &stubBackend{text: "VAT in Nigeria is 7.5% on most goods and services."}
	g := NewGenerator(stub, NewPromptGenerator(), testOpts)

	got, err := g.Generate(context.Background(), "What is VAT?", "VAT is charged at 7.5%.")
	require.NoError(t, err)
	assert.Equal(t, stub.text, got)
	assert.Equal(t, "stub", g.Provider())
	assert.Equal(t, testOpts, stub.opts)

	require.Len(t, stub.messages, 2)
	assert.Contains(t, stub.messages[0].Content, "VAT is charged at 7.5%.")
	assert.Equal(t, Message{Role: "user", Content: "What is VAT?"}, stub.messages[1])
}

func TestGeneratorWrapsFailures(t *testing.T) {
	g := NewGenerator(&stubBackend{err: errors.New("connection refused")}, NewPromptGenerator(), testOpts)
	_, err := g.Generate(context.Background(), "q", "k")

	var genErr *core.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "stub", genErr.Provider)
	assert.Contains(t, err.Error(), "stub")

	g = NewGenerator(&stubBackend{text: "  "}, NewPromptGenerator(), testOpts)
	_, err = g.Generate(context.Background(), "q", "k")
	assert.ErrorAs(t, err, &genErr)
}

func TestNewBackendSelection(t *testing.T) {
	cfg := config.Default().Generation
	assert.Equal(t, ProviderOllama, NewBackend(cfg).Name())

	cfg.UseGroq = true
	assert.Equal(t, ProviderGroq, NewBackend(cfg).Name())

	cfg.UseGroq = false
	cfg.CloudEnvironment = true
	assert.Equal(t, ProviderGroq, NewBackend(cfg).Name())
}

func TestNewGeneratorFromConfigRejectsBadPrompt(t *testing.T) {
	cfg := config.Default().Generation
	cfg.PromptFile = filepath.Join(t.TempDir(), "missing.txt")

	_, err := NewGeneratorFromConfig(cfg)
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
