package core

import (
	"strings"
	"unicode/utf8"
)

// Query limits shared by every inbound channel.
const (
	MinQuestionLength = 1
	MaxQuestionLength = 500
	MinAnswerLength   = 50
	MaxAnswerLength   = 500
	// DefaultAnswerLength fits a single SMS.
	DefaultAnswerLength = 140
)

// Document is a logical source, e.g. one uploaded tax act. It owns its chunks.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Chunk is a bounded span of a document's text with its embedding.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// ChunkInput is what ingestion hands to StoreDocument.
type ChunkInput struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Match is one retrieved chunk. Lower distance means closer.
type Match struct {
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// RetrievalResult is ordered by ascending distance and may be empty.
type RetrievalResult []Match

// Query is a single question. MaxLength of zero means "use the default".
type Query struct {
	Question  string `json:"question"`
	MaxLength int    `json:"max_length,omitempty"`
}

// Validate checks the question and answer length bounds.
func (q Query) Validate() error {
	n := utf8.RuneCountInString(q.Question)
	if strings.TrimSpace(q.Question) == "" || n < MinQuestionLength {
		return &ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if n > MaxQuestionLength {
		return &ValidationError{Field: "question", Reason: "must be at most 500 characters"}
	}
	if q.MaxLength != 0 && (q.MaxLength < MinAnswerLength || q.MaxLength > MaxAnswerLength) {
		return &ValidationError{Field: "max_length", Reason: "must be between 50 and 500"}
	}
	return nil
}

// EffectiveMaxLength resolves an unset MaxLength to the default.
func (q Query) EffectiveMaxLength() int {
	if q.MaxLength == 0 {
		return DefaultAnswerLength
	}
	return q.MaxLength
}

// Answer is produced once per query and never persisted by the pipeline.
type Answer struct {
	Text        string `json:"answer"`
	Success     bool   `json:"success"`
	ChunksFound int    `json:"chunks_found"`
	Error       string `json:"error,omitempty"`
}
