package rag

import (
	"context"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// Provisioner owns schema creation and teardown. Only the ingest tooling uses
// it; the query path never changes index structure.
type Provisioner interface {
	EnsureSchema(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Store is a vector store that can also provision itself.
type Store interface {
	core.VectorStore
	Provisioner
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PGVectorStore)(nil)
	_ Store = (*MilvusStore)(nil)
)
