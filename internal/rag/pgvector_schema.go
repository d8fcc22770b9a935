package rag

import (
	"context"
	"fmt"

	"github.com/hunterwarburton/taxassist/internal/logger"
)

func pgSchema(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id   SERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id   SERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS document_tags (
			id          SERIAL PRIMARY KEY,
			document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			tag_id      INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_information_chunks (
			id          SERIAL PRIMARY KEY,
			document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk       TEXT NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON document_information_chunks
			USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			EmbeddingIndex, HNSWM, HNSWEfConstruction),
	}
}

// EnsureSchema enables pgvector and creates the tables and HNSW index.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range pgSchema(s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to provision schema: %w", err)
		}
	}
	// Reconnect so AfterConnect can register the vector codec.
	s.pool.Reset()
	logger.RAGInfo("Postgres schema ready (vector(%d), HNSW m=%d ef_construction=%d)", s.dim, HNSWM, HNSWEfConstruction)
	return nil
}

// Reset drops the tables. The extension is left in place.
func (s *PGVectorStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`DROP TABLE IF EXISTS document_information_chunks, document_tags, tags, documents`); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	logger.RAGInfo("Postgres tables dropped")
	return nil
}
