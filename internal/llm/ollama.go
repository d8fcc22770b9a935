package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hunterwarburton/taxassist/internal/logger"
)

// OllamaBackend talks to a local Ollama server.
type OllamaBackend struct {
	host       string
	model      string
	httpClient *http.Client
}

// ollamaChatRequest is the body of POST /api/chat.
type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model      string  `json:"model"`
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	EvalCount  int     `json:"eval_count,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewOllamaBackend creates the local backend for host, e.g. http://localhost:11434.
func NewOllamaBackend(host, model string) *OllamaBackend {
	return &OllamaBackend{
		host:  strings.TrimRight(host, "/"),
		model: model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Local models can be slow on first load
		},
	}
}

// Name implements Backend.
func (o *OllamaBackend) Name() string { return ProviderOllama }

// Complete sends a non-streaming chat request.
func (o *OllamaBackend) Complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	reqBody := ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	logger.LLMDebug("Sending %d messages to Ollama model %s", len(messages), o.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	// Check for error in response body regardless of status code
	var out ollamaChatResponse
	decodeErr := json.Unmarshal(body, &out)
	if decodeErr == nil && out.Error != "" {
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API HTTP error (status %d): %s", resp.StatusCode, string(body))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	logger.LLMDebug("Ollama call completed. Done reason: %s, tokens: %d", out.DoneReason, out.EvalCount)
	return out.Message.Content, nil
}

// Health lists local models to check that the server is up.
func (o *OllamaBackend) Health(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return ProviderOllama + ":disconnected"
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return ProviderOllama + ":disconnected"
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProviderOllama + ":disconnected"
	}
	return ProviderOllama + ":connected"
}
