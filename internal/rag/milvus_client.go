package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/hunterwarburton/taxassist/internal/core"
	"github.com/hunterwarburton/taxassist/internal/logger"
)

// Field names for the Milvus chunk collection
const (
	FieldID           = "id"
	FieldDocumentID   = "document_id"
	FieldDocumentName = "document_name"
	FieldChunk        = "chunk"
	FieldEmbedding    = "embedding"
)

// MilvusStore keeps chunks in a single Milvus collection. The gRPC client
// multiplexes concurrent calls over one connection.
type MilvusStore struct {
	client     *milvusclient.Client
	collection string
	dim        int
}

// NewMilvusStore connects to Milvus at addr.
func NewMilvusStore(ctx context.Context, addr, collection string, dim int) (*MilvusStore, error) {
	logger.RAGInfo("Connecting to Milvus at %s (collection %s, dimension %d)", addr, collection, dim)

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	return &MilvusStore{client: c, collection: collection, dim: dim}, nil
}

// Search runs one ANN query. Milvus reports cosine similarity, converted here
// to distance so results read the same as the SQL stores.
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int) (core.RetrievalResult, error) {
	if topK <= 0 {
		return core.RetrievalResult{}, nil
	}

	opt := milvusclient.NewSearchOption(s.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldEmbedding).
		WithOutputFields(FieldChunk)
	resultSets, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(resultSets) == 0 {
		return core.RetrievalResult{}, nil
	}

	rs := resultSets[0]
	result := make(core.RetrievalResult, 0, rs.ResultCount)
	if rs.ResultCount == 0 {
		return result, nil
	}
	texts := rs.GetColumn(FieldChunk)
	if texts == nil {
		return nil, fmt.Errorf("milvus search returned no %s column", FieldChunk)
	}
	for i := 0; i < rs.ResultCount; i++ {
		text, err := texts.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		result = append(result, core.Match{Text: text, Distance: 1 - float64(rs.Scores[i])})
	}
	logger.RAGDebug("Milvus returned %d of %d requested chunks", len(result), topK)
	return nearest(result, topK), nil
}

// StoreDocument inserts chunks in batches of InsertBatchSize. Milvus has no
// multi-request transactions, so a failed batch deletes what was written.
func (s *MilvusStore) StoreDocument(ctx context.Context, name string, chunks []core.ChunkInput) (string, error) {
	if err := checkChunks(s.dim, chunks); err != nil {
		return "", err
	}

	docID := uuid.NewString()
	for i, batch := range batches(chunks) {
		ids := make([]string, len(batch))
		names := make([]string, len(batch))
		texts := make([]string, len(batch))
		vectors := make([][]float32, len(batch))
		for j, c := range batch {
			ids[j] = docID
			names[j] = name
			texts[j] = c.Text
			vectors[j] = c.Embedding
		}

		opt := milvusclient.NewColumnBasedInsertOption(s.collection).
			WithVarcharColumn(FieldDocumentID, ids).
			WithVarcharColumn(FieldDocumentName, names).
			WithVarcharColumn(FieldChunk, texts).
			WithFloatVectorColumn(FieldEmbedding, s.dim, vectors)
		if _, err := s.client.Insert(ctx, opt); err != nil {
			if i > 0 {
				if derr := s.DeleteDocument(context.WithoutCancel(ctx), docID); derr != nil {
					logger.RAGError("Failed to roll back partial document %s: %v", docID, derr)
				}
			}
			return "", fmt.Errorf("failed to insert chunk batch %d: %w", i+1, err)
		}
	}
	return docID, nil
}

// DeleteDocument removes every chunk of the document.
func (s *MilvusStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid document id %q: %w", id, err)
	}
	opt := milvusclient.NewDeleteOption(s.collection).WithExpr(fmt.Sprintf(`%s == "%s"`, FieldDocumentID, id))
	if _, err := s.client.Delete(ctx, opt); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Dimension reads the declared size of the embedding field.
func (s *MilvusStore) Dimension(ctx context.Context) (int, error) {
	coll, err := s.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(s.collection))
	if err != nil {
		return 0, fmt.Errorf("failed to describe collection %s: %w", s.collection, err)
	}
	for _, f := range coll.Schema.Fields {
		if f.Name == FieldEmbedding {
			return strconv.Atoi(f.TypeParams["dim"])
		}
	}
	return 0, fmt.Errorf("collection %s has no %s field", s.collection, FieldEmbedding)
}

// Ping checks that the server answers and the collection exists.
func (s *MilvusStore) Ping(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("collection %s does not exist", s.collection)
	}
	return nil
}

// Close closes the connection to Milvus
func (s *MilvusStore) Close() error {
	return s.client.Close(context.Background())
}
