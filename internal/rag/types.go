package rag

import (
	"fmt"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// Relation names shared by the SQL stores.
const (
	DocumentsTable   = "documents"
	ChunksTable      = "document_information_chunks"
	TagsTable        = "tags"
	DocumentTagTable = "document_tags"
	EmbeddingIndex   = "embedding_idx"
)

// InsertBatchSize bounds how many chunks go into a single insert statement.
const InsertBatchSize = 100

// HNSW build parameters for the cosine index.
const (
	HNSWM              = 16
	HNSWEfConstruction = 64
)

func checkChunks(dim int, chunks []core.ChunkInput) error {
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %d has %d dimensions, store expects %d: %w",
				i, len(c.Embedding), dim, core.ErrDimensionMismatch)
		}
	}
	return nil
}

func checkQuery(dim int, vector []float32) error {
	if len(vector) != dim {
		return fmt.Errorf("query has %d dimensions, store expects %d: %w",
			len(vector), dim, core.ErrDimensionMismatch)
	}
	return nil
}

// batches splits chunks into InsertBatchSize slices.
func batches(chunks []core.ChunkInput) [][]core.ChunkInput {
	var out [][]core.ChunkInput
	for start := 0; start < len(chunks); start += InsertBatchSize {
		end := start + InsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[start:end])
	}
	return out
}
