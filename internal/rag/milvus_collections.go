package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/hunterwarburton/taxassist/internal/logger"
)

// Max lengths for VarChar fields
const (
	DefaultMaxVarCharLength = "65535"
	DefaultIDMaxLength      = "64"
	DefaultNameMaxLength    = "1024"
)

func chunkSchema(collection string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collection,
		Description:    "Tax document chunks with dense embeddings",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:       FieldDocumentID,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": DefaultIDMaxLength},
			},
			{
				Name:       FieldDocumentName,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": DefaultNameMaxLength},
			},
			{
				Name:       FieldChunk,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": DefaultMaxVarCharLength},
			},
			{
				Name:       FieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
		},
	}
}

// EnsureSchema creates the chunk collection with an HNSW cosine index if it
// is missing, then loads it into memory. Milvus requires loading before search.
func (s *MilvusStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}

	if !exists {
		createOpt := milvusclient.NewCreateCollectionOption(s.collection, chunkSchema(s.collection, s.dim))
		createOpt.WithShardNum(2)
		if err := s.client.CreateCollection(ctx, createOpt); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
		}

		idx := index.NewHNSWIndex(entity.COSINE, HNSWM, HNSWEfConstruction)
		indexOpt := milvusclient.NewCreateIndexOption(s.collection, FieldEmbedding, idx)
		if _, err := s.client.CreateIndex(ctx, indexOpt); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", FieldEmbedding, err)
		}
		logger.RAGInfo("Created collection %s with HNSW cosine index", s.collection)
	}

	if _, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection)); err != nil {
		return fmt.Errorf("failed to load collection %s into memory: %w", s.collection, err)
	}
	logger.RAGInfo("Collection %s loaded", s.collection)
	return nil
}

// Reset drops the chunk collection.
func (s *MilvusStore) Reset(ctx context.Context) error {
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(s.collection)); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", s.collection, err)
	}
	logger.RAGInfo("Dropped collection %s", s.collection)
	return nil
}
