package core

import "context"

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	// Embed must be deterministic for identical input and model configuration.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the configured output size.
	Dimension() int
}

// Searcher is the query side of a vector store.
type Searcher interface {
	// Search returns at most topK matches ordered by ascending distance.
	// An empty store yields an empty result and no error.
	Search(ctx context.Context, vector []float32, topK int) (RetrievalResult, error)
}

// DocumentWriter is the ingestion side of a vector store.
type DocumentWriter interface {
	// StoreDocument writes a document and all of its chunks atomically.
	StoreDocument(ctx context.Context, name string, chunks []ChunkInput) (string, error)
	// DeleteDocument removes a document and cascades to its chunks.
	DeleteDocument(ctx context.Context, id string) error
}

// VectorStore is a pooled, swappable chunk store.
type VectorStore interface {
	Searcher
	DocumentWriter
	Dimension(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// AnswerBackend turns (question, knowledge) into raw answer text.
type AnswerBackend interface {
	Provider() string
	Generate(ctx context.Context, question, knowledge string) (string, error)
}
