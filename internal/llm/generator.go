package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

// Generator turns a question and retrieved knowledge into a raw answer using
// the one backend chosen at startup.
type Generator struct {
	backend Backend
	prompts *PromptGenerator
	opts    ChatOptions
}

var _ core.AnswerBackend = (*Generator)(nil)

// NewGenerator wires a backend and prompt template.
func NewGenerator(backend Backend, prompts *PromptGenerator, opts ChatOptions) *Generator {
	return &Generator{backend: backend, prompts: prompts, opts: opts}
}

// NewBackend selects Groq when requested or when running in a cloud
// environment, and Ollama otherwise. The choice is made once.
func NewBackend(cfg config.GenerationConfig) Backend {
	if cfg.UseHosted() {
		if cfg.GroqAPIKey == "" {
			logger.LLMWarn("Groq selected but GROQ_API_KEY is empty; queries will fail")
		}
		logger.LLMInfo("Using Groq backend with model %s (cloud environment: %t)", cfg.ChatModel, cfg.CloudEnvironment)
		return NewGroqBackend(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.ChatModel)
	}
	logger.LLMInfo("Using Ollama backend at %s with model %s", cfg.OllamaHost, cfg.ChatModel)
	return NewOllamaBackend(cfg.OllamaHost, cfg.ChatModel)
}

// NewGeneratorFromConfig builds the backend, prompt and options from cfg.
func NewGeneratorFromConfig(cfg config.GenerationConfig) (*Generator, error) {
	prompts, err := LoadPromptGenerator(cfg.PromptFile)
	if err != nil {
		return nil, &core.ConfigurationError{Field: "generation.prompt_file", Reason: "unusable prompt template", Err: err}
	}
	return NewGenerator(NewBackend(cfg), prompts, ChatOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}), nil
}

// Provider names the selected backend.
func (g *Generator) Provider() string { return g.backend.Name() }

// Health reports the backend's state.
func (g *Generator) Health(ctx context.Context) string { return g.backend.Health(ctx) }

// Generate returns the backend's text unmodified. Failures and empty
// completions come back as *core.GenerationError.
func (g *Generator) Generate(ctx context.Context, question, knowledge string) (string, error) {
	messages := []Message{
		{Role: "system", Content: g.prompts.GenerateSystemPrompt(knowledge)},
		{Role: "user", Content: question},
	}

	text, err := g.backend.Complete(ctx, messages, g.opts)
	if err != nil {
		logger.LLMError("%s generation failed: %v", g.backend.Name(), err)
		return "", &core.GenerationError{Provider: g.backend.Name(), Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &core.GenerationError{Provider: g.backend.Name(), Err: errors.New("empty completion")}
	}
	return text, nil
}
