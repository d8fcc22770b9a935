package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

// OllamaEmbedder calls a local Ollama server's embedding endpoint.
type OllamaEmbedder struct {
	host       string
	model      string
	dim        int
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResponse covers both /api/embed and the older /api/embeddings shape.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Embedding  []float32   `json:"embedding"`
	Error      string      `json:"error"`
}

// NewOllamaEmbedder creates an embedder for model at host, e.g. http://localhost:11434.
func NewOllamaEmbedder(host, model string, dim int) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:  strings.TrimRight(host, "/"),
		model: model,
		dim:   dim,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Dimension returns the configured vector size.
func (e *OllamaEmbedder) Dimension() int { return e.dim }

// Model names the embedding model, used as part of cache keys.
func (e *OllamaEmbedder) Model() string { return "ollama/" + e.model }

// Embed returns the embedding for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embed response: %w", err)
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ollama embed HTTP error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama embed error: %s", out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed HTTP error (status %d): %s", resp.StatusCode, string(body))
	}

	vec := out.Embedding
	if len(out.Embeddings) > 0 {
		vec = out.Embeddings[0]
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding for model %s", e.model)
	}
	if len(vec) != e.dim {
		return nil, fmt.Errorf("model %s produced %d dimensions, configured %d: %w",
			e.model, len(vec), e.dim, core.ErrDimensionMismatch)
	}
	logger.RAGDebug("Embedded %d characters with %s", len(text), e.model)
	return vec, nil
}
