package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

const metaDimensionKey = "embedding_dim"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document_information_chunks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk       TEXT NOT NULL,
		embedding   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_information_chunks(document_id)`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// SQLiteStore is an embedded, single-file store. Search is an exact scan, so
// it suits small corpora and development rather than production traffic.
type SQLiteStore struct {
	db  *sql.DB
	dim int
}

// OpenSQLite opens (creating if needed) the database at path. The dimension is
// recorded on first open; later opens keep the recorded value.
func OpenSQLite(ctx context.Context, path string, dim int) (*SQLiteStore, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, dim: dim}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables and records the embedding dimension.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO store_meta(key, value) VALUES(?, ?)`,
		metaDimensionKey, strconv.Itoa(s.dim)); err != nil {
		return fmt.Errorf("failed to record embedding dimension: %w", err)
	}
	dim, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	if dim != s.dim {
		logger.RAGWarn("SQLite store was created for %d dimensions, configured %d", dim, s.dim)
	}
	s.dim = dim
	return nil
}

// Reset drops every table. EnsureSchema must run before the store is reused.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	for _, table := range []string{ChunksTable, DocumentsTable, "store_meta"} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}

// StoreDocument inserts the document and its chunks in one transaction.
func (s *SQLiteStore) StoreDocument(ctx context.Context, name string, chunks []core.ChunkInput) (string, error) {
	if err := checkChunks(s.dim, chunks); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO documents(name) VALUES(?)`, name)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	docID, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read document id: %w", err)
	}

	for _, batch := range batches(chunks) {
		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*3)
		for _, c := range batch {
			vec, err := json.Marshal(c.Embedding)
			if err != nil {
				return "", fmt.Errorf("failed to encode embedding: %w", err)
			}
			placeholders = append(placeholders, "(?, ?, ?)")
			args = append(args, docID, c.Text, string(vec))
		}
		stmt := `INSERT INTO document_information_chunks(document_id, chunk, embedding) VALUES ` +
			strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return "", fmt.Errorf("failed to insert chunk batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit document: %w", err)
	}
	return strconv.FormatInt(docID, 10), nil
}

// DeleteDocument removes the document and its chunks.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_information_chunks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return tx.Commit()
}

// Search computes cosine distance against every stored chunk.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int) (core.RetrievalResult, error) {
	if err := checkQuery(s.dim, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return core.RetrievalResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk, embedding FROM document_information_chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]core.Match, 0, topK)
	for rows.Next() {
		var text, raw string
		if err := rows.Scan(&text, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) != len(vector) {
			logger.RAGWarn("Skipping chunk with unreadable embedding")
			continue
		}
		matches = append(matches, core.Match{Text: text, Distance: cosineDistance(vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return nearest(matches, topK), nil
}

// Dimension reads the recorded embedding dimension.
func (s *SQLiteStore) Dimension(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaDimensionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite store has no recorded dimension")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dimension: %w", err)
	}
	return strconv.Atoi(v)
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
