package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

const pgSearchSQL = `SELECT chunk, embedding <=> $1::vector AS distance
FROM document_information_chunks
ORDER BY embedding <=> $1::vector
LIMIT $2`

const pgDimensionSQL = `SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'document_information_chunks'::regclass AND attname = 'embedding'`

// PGVectorStore reads and writes chunks in Postgres with the pgvector
// extension. Connections come from a bounded pgxpool.
type PGVectorStore struct {
	pool *pgxpool.Pool
	dim  int
}

// OpenPGVector connects a pool. dim is only used when creating the schema;
// Dimension reports what the table actually holds.
func OpenPGVector(ctx context.Context, dsn string, dim int) (*PGVectorStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// The extension may not exist yet on a fresh database; -init creates it.
		if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
			logger.RAGDebug("pgvector types not registered: %v", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	logger.RAGInfo("Postgres pool ready (max %d connections)", cfg.MaxConns)
	return &PGVectorStore{pool: pool, dim: dim}, nil
}

// Search runs a single ANN query against the HNSW cosine index.
func (s *PGVectorStore) Search(ctx context.Context, vector []float32, topK int) (core.RetrievalResult, error) {
	if topK <= 0 {
		return core.RetrievalResult{}, nil
	}

	rows, err := s.pool.Query(ctx, pgSearchSQL, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	result := make(core.RetrievalResult, 0, topK)
	for rows.Next() {
		var m core.Match
		if err := rows.Scan(&m.Text, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	logger.RAGDebug("pgvector returned %d of %d requested chunks", len(result), topK)
	return result, nil
}

// StoreDocument inserts the document and its chunks in one transaction,
// sending chunk inserts in batches of InsertBatchSize.
func (s *PGVectorStore) StoreDocument(ctx context.Context, name string, chunks []core.ChunkInput) (string, error) {
	if err := checkChunks(s.dim, chunks); err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var docID int64
	if err := tx.QueryRow(ctx, `INSERT INTO documents(name) VALUES($1) RETURNING id`, name).Scan(&docID); err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}

	for i, batch := range batches(chunks) {
		b := &pgx.Batch{}
		for _, c := range batch {
			b.Queue(`INSERT INTO document_information_chunks(document_id, chunk, embedding) VALUES($1, $2, $3)`,
				docID, c.Text, pgvector.NewVector(c.Embedding))
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return "", fmt.Errorf("failed to insert chunk batch %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit document: %w", err)
	}
	return strconv.FormatInt(docID, 10), nil
}

// DeleteDocument relies on ON DELETE CASCADE to remove chunks.
func (s *PGVectorStore) DeleteDocument(ctx context.Context, id string) error {
	docID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", id, err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

// Dimension reads the declared size of the embedding column.
func (s *PGVectorStore) Dimension(ctx context.Context) (int, error) {
	var typmod int32
	if err := s.pool.QueryRow(ctx, pgDimensionSQL).Scan(&typmod); err != nil {
		return 0, fmt.Errorf("failed to read embedding column dimension: %w", err)
	}
	return int(typmod), nil
}

// Ping acquires a pooled connection and pings the server.
func (s *PGVectorStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close closes the pool.
func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}
