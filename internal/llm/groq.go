package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hunterwarburton/taxassist/internal/logger"
)

// GroqBackend talks to Groq's OpenAI-compatible API.
type GroqBackend struct {
	client     openai.Client
	model      string
	configured bool
}

// NewGroqBackend creates the hosted backend. Retries are disabled; a failed
// call surfaces as a failed answer.
func NewGroqBackend(apiKey, baseURL, model string) *GroqBackend {
	return &GroqBackend{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
			option.WithMaxRetries(0),
		),
		model:      model,
		configured: apiKey != "",
	}
}

// Name implements Backend.
func (g *GroqBackend) Name() string { return ProviderGroq }

// Complete sends one chat completion request.
func (g *GroqBackend) Complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	logger.LLMDebug("Sending %d messages to Groq model %s", len(messages), g.model)
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("groq API error (status %d): %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("groq API returned no choices")
	}

	if resp.Usage.TotalTokens > 0 {
		logger.LLMDebug("Groq usage - Prompt: %d, Completion: %d, Total: %d tokens. Finish Reason: %s",
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens, resp.Choices[0].FinishReason)
	}
	return resp.Choices[0].Message.Content, nil
}

// Health reports whether an API key is present. It makes no network call.
func (g *GroqBackend) Health(ctx context.Context) string {
	if g.configured {
		return ProviderGroq + ":configured"
	}
	return ProviderGroq + ":not_configured"
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
