package llm

import "context"

// Provider names reported in errors and health checks.
const (
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tune a single completion call.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// Backend is a chat completion provider. Exactly one is selected per process.
type Backend interface {
	// Name identifies the provider, e.g. "groq".
	Name() string

	// Complete issues one chat completion call and returns the raw text.
	Complete(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

	// Health reports "<name>:<state>" without failing.
	Health(ctx context.Context) string
}
