package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an embedder. An empty baseURL uses api.openai.com.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int) *OpenAIEmbedder {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
		dim:    dim,
	}
}

// Dimension returns the configured vector size.
func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// Model names the embedding model, used as part of cache keys.
func (e *OpenAIEmbedder) Model() string { return "openai/" + e.model }

// Embed returns the embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embedding for model %s", e.model)
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dim {
		return nil, fmt.Errorf("model %s produced %d dimensions, configured %d: %w",
			e.model, len(raw), e.dim, core.ErrDimensionMismatch)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
