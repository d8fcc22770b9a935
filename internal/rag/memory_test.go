package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/taxassist/internal/core"
)

func chunk(text string, v ...float32) core.ChunkInput {
	return core.ChunkInput{Text: text, Embedding: v}
}

func TestMemoryStoreSearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	_, err := s.StoreDocument(ctx, "VAT Act", []core.ChunkInput{
		chunk("far", 0, 1),
		chunk("close", 1, 0.1),
		chunk("exact", 1, 0),
	})
	require.NoError(t, err)

	got, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "exact", got[0].Text)
	assert.Equal(t, "close", got[1].Text)
	assert.Equal(t, "far", got[2].Text)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestMemoryStoreSearchLimitsToTopK(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	for i := 0; i < 5; i++ {
		_, err := s.StoreDocument(ctx, "doc", []core.ChunkInput{chunk("c", 1, float32(i))})
		require.NoError(t, err)
	}

	got, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreEmptySearch(t *testing.T) {
	got, err := NewMemoryStore(3).Search(context.Background(), []float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemoryStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	_, err := s.Search(ctx, []float32{1, 2}, 3)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = s.StoreDocument(ctx, "doc", []core.ChunkInput{chunk("ok", 1, 2, 3), chunk("bad", 1)})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Empty(t, s.Documents(), "a rejected document must not be partially stored")
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	keep, err := s.StoreDocument(ctx, "Companies Income Tax Act", []core.ChunkInput{chunk("cit", 1, 0)})
	require.NoError(t, err)
	drop, err := s.StoreDocument(ctx, "VAT Act", []core.ChunkInput{chunk("vat", 1, 0), chunk("vat2", 0.9, 0.1)})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, drop))
	assert.Error(t, s.DeleteDocument(ctx, drop))

	got, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cit", got[0].Text)

	docs := s.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, keep, docs[0].ID)
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	_, err := s.StoreDocument(ctx, "doc", []core.ChunkInput{chunk("a", 1, 0)})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	got, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore(2).Search(ctx, []float32{1, 0}, 3)
	assert.ErrorIs(t, err, context.Canceled)
}
