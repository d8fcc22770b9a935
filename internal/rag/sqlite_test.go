package rag

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/taxassist/internal/core"
)

func openTestSQLite(t *testing.T, dim int) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "chunks.db"), dim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 2)

	id, err := s.StoreDocument(ctx, "VAT Act", []core.ChunkInput{
		chunk("VAT is charged at 7.5%.", 1, 0),
		chunk("Exempt goods include basic food items.", 0, 1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.Search(ctx, []float32{1, 0.05}, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "VAT is charged at 7.5%.", got[0].Text)
	assert.Less(t, got[0].Distance, got[1].Distance)

	dim, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)
	assert.NoError(t, s.Ping(ctx))
}

func TestSQLiteStoreBatchesLargeDocuments(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 2)

	chunks := make([]core.ChunkInput, InsertBatchSize*2+5)
	for i := range chunks {
		chunks[i] = chunk("c", 1, float32(i))
	}
	_, err := s.StoreDocument(ctx, "big", chunks)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_information_chunks`).Scan(&n))
	assert.Equal(t, len(chunks), n)
}

func TestSQLiteStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 2)

	id, err := s.StoreDocument(ctx, "doc", []core.ChunkInput{chunk("a", 1, 0)})
	require.NoError(t, err)
	require.NoError(t, s.DeleteDocument(ctx, id))
	assert.Error(t, s.DeleteDocument(ctx, id))

	got, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStoreKeepsRecordedDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")

	first, err := OpenSQLite(ctx, path, 3)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path, 768)
	require.NoError(t, err)
	defer second.Close()

	dim, err := second.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	_, err = second.Search(ctx, make([]float32, 768), 3)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestSQLiteStoreResetAndReprovision(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 2)
	_, err := s.StoreDocument(ctx, "doc", []core.ChunkInput{chunk("a", 1, 0)})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.EnsureSchema(ctx))

	got, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
