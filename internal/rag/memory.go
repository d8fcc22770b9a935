package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// MemoryStore keeps chunks in process. Used for tests and local experiments.
type MemoryStore struct {
	dim    int
	mu     sync.RWMutex
	nextID int64
	docs   map[string]core.Document
	chunks map[string][]core.Chunk // by document ID, insertion order
	order  []string                // document IDs, insertion order
}

// NewMemoryStore creates an empty store for vectors of size dim.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:    dim,
		docs:   make(map[string]core.Document),
		chunks: make(map[string][]core.Chunk),
	}
}

// StoreDocument adds a document and its chunks under a single lock.
func (s *MemoryStore) StoreDocument(ctx context.Context, name string, chunks []core.ChunkInput) (string, error) {
	if err := checkChunks(s.dim, chunks); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	docID := strconv.FormatInt(s.nextID, 10)
	stored := make([]core.Chunk, 0, len(chunks))
	for i, c := range chunks {
		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		stored = append(stored, core.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i+1),
			DocumentID: docID,
			Text:       c.Text,
			Embedding:  vec,
		})
	}
	s.docs[docID] = core.Document{ID: docID, Name: name}
	s.chunks[docID] = stored
	s.order = append(s.order, docID)
	return docID, nil
}

// DeleteDocument removes a document and its chunks.
func (s *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("document %s not found", id)
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	for i, d := range s.order {
		if d == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Search scans every chunk and returns the topK closest.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, topK int) (core.RetrievalResult, error) {
	if err := checkQuery(s.dim, vector); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return core.RetrievalResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]core.Match, 0)
	for _, docID := range s.order {
		for _, c := range s.chunks[docID] {
			matches = append(matches, core.Match{Text: c.Text, Distance: cosineDistance(vector, c.Embedding)})
		}
	}
	return nearest(matches, topK), nil
}

// Dimension returns the configured vector size.
func (s *MemoryStore) Dimension(ctx context.Context) (int, error) { return s.dim, nil }

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Documents lists stored documents in insertion order.
func (s *MemoryStore) Documents() []core.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// EnsureSchema is a no-op; the maps are created by NewMemoryStore.
func (s *MemoryStore) EnsureSchema(ctx context.Context) error { return nil }

// Reset drops every document.
func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]core.Document)
	s.chunks = make(map[string][]core.Chunk)
	s.order = nil
	return nil
}
