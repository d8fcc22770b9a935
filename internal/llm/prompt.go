package llm

import (
	"fmt"
	"os"
	"strings"
)

// KnowledgePlaceholder marks where retrieved context goes in the system prompt.
const KnowledgePlaceholder = "{{knowledge}}"

// RespondToMessageSystemPrompt is the built-in SMS answer template.
var RespondToMessageSystemPrompt = strings.Join([]string{
	"You are a Nigerian tax assistant. Provide SHORT, CLEAR answers for SMS (max 130 characters).",
	"",
	"RULES:",
	"1. Answer in ONE complete sentence",
	"2. Include specific numbers/rates when available (e.g., 'VAT is 7.5%')",
	"3. Use simple language - avoid legal jargon",
	"4. If asking about rates/amounts, give the number first",
	"5. Only say 'Information not available' if knowledge is unrelated",
	"",
	"EXAMPLES:",
	"Q: What is VAT rate? A: VAT in Nigeria is 7.5% on most goods and services.",
	"Q: Companies tax? A: Companies pay 30% tax on profits, small companies exempt if under N25M turnover.",
	"",
	"Available Knowledge:",
	KnowledgePlaceholder,
}, "\n\n")

// PromptGenerator renders the system prompt for a question's context.
type PromptGenerator struct {
	template string
}

// NewPromptGenerator uses the built-in template.
func NewPromptGenerator() *PromptGenerator {
	return &PromptGenerator{template: RespondToMessageSystemPrompt}
}

// LoadPromptGenerator reads a template from path. An empty path selects the
// built-in template.
func LoadPromptGenerator(path string) (*PromptGenerator, error) {
	if path == "" {
		return NewPromptGenerator(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	tmpl := string(data)
	if !strings.Contains(tmpl, KnowledgePlaceholder) {
		return nil, fmt.Errorf("prompt file %s has no %s placeholder", path, KnowledgePlaceholder)
	}
	return &PromptGenerator{template: tmpl}, nil
}

// GenerateSystemPrompt substitutes knowledge into the template.
func (pg *PromptGenerator) GenerateSystemPrompt(knowledge string) string {
	return strings.ReplaceAll(pg.template, KnowledgePlaceholder, knowledge)
}
