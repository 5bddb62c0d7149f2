package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/docproc/internal/core/domain"
)

func newStoredDocument(t *testing.T, store *Store) *domain.Document {
	t.Helper()
	doc := &domain.Document{
		ID:       uuid.New(),
		Filename: "notes.pdf",
		FileType: "application/pdf",
		Status:   domain.StatusPending,
	}
	require.NoError(t, store.SaveDocument(context.Background(), doc))
	return doc
}

func TestSaveAndGetDocument(t *testing.T) {
	store := NewStore()
	doc := newStoredDocument(t, store)

	got, err := store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "notes.pdf", got.Filename)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetDocument_NotFound(t *testing.T) {
	store := NewStore()

	_, err := store.GetDocument(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateDocumentStatus_EnforcesStateMachine(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	doc := newStoredDocument(t, store)

	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusParsing, ""))

	// Skipping chunking is illegal.
	err := store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusEmbedding, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusFailed, "parser exploded"))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "parser exploded", got.ProcessingError)
	assert.NotNil(t, got.ProcessingCompletedAt)

	// Terminal states admit no further transitions.
	err = store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusParsing, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCreateChunks_ReplacesSet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	doc := newStoredDocument(t, store)

	first := []domain.Chunk{
		{ID: uuid.New(), Index: 0, Text: "old chunk"},
		{ID: uuid.New(), Index: 1, Text: "another old chunk"},
	}
	require.NoError(t, store.CreateChunks(ctx, doc.ID, first))

	require.NoError(t, store.UpsertEmbedding(ctx, domain.Embedding{
		ChunkID: first[0].ID, Vector: []float32{1, 0}, ModelName: "m", Dimensions: 2,
	}))

	second := []domain.Chunk{{ID: uuid.New(), Index: 0, Text: "new chunk"}}
	require.NoError(t, store.CreateChunks(ctx, doc.ID, second))

	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new chunk", chunks[0].Text)
	assert.Equal(t, doc.ID, chunks[0].DocumentID)

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalChunks)

	// Replaced chunks lose their embeddings too.
	missing, err := store.ChunksWithoutEmbedding(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, missing, 1)
}

func TestChunksWithoutEmbedding(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	doc := newStoredDocument(t, store)

	chunks := []domain.Chunk{
		{ID: uuid.New(), Index: 0, Text: "embedded"},
		{ID: uuid.New(), Index: 1, Text: "not embedded"},
	}
	require.NoError(t, store.CreateChunks(ctx, doc.ID, chunks))
	require.NoError(t, store.UpsertEmbedding(ctx, domain.Embedding{
		ChunkID: chunks[0].ID, Vector: []float32{1, 0}, ModelName: "m", Dimensions: 2,
	}))

	missing, err := store.ChunksWithoutEmbedding(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "not embedded", missing[0].Text)
}

func TestUpsertEmbedding_UnknownChunk(t *testing.T) {
	store := NewStore()

	err := store.UpsertEmbedding(context.Background(), domain.Embedding{
		ChunkID: uuid.New(), Vector: []float32{1}, ModelName: "m", Dimensions: 1,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSimilaritySearch_OrdersByDistance(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	doc := newStoredDocument(t, store)

	chunks := []domain.Chunk{
		{ID: uuid.New(), Index: 0, Text: "aligned"},
		{ID: uuid.New(), Index: 1, Text: "orthogonal"},
		{ID: uuid.New(), Index: 2, Text: "opposite"},
		{ID: uuid.New(), Index: 3, Text: "no embedding"},
	}
	require.NoError(t, store.CreateChunks(ctx, doc.ID, chunks))

	vectors := [][]float32{{1, 0}, {0, 1}, {-1, 0}}
	for i, vec := range vectors {
		require.NoError(t, store.UpsertEmbedding(ctx, domain.Embedding{
			ChunkID: chunks[i].ID, Vector: vec, ModelName: "m", Dimensions: 2,
		}))
	}

	results, err := store.SimilaritySearch(ctx, doc.ID, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3, "chunks without embeddings are excluded")

	assert.Equal(t, "aligned", results[0].Chunk.Text)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Equal(t, "orthogonal", results[1].Chunk.Text)
	assert.InDelta(t, 1.0, results[1].Distance, 1e-6)
	assert.Equal(t, "opposite", results[2].Chunk.Text)
	assert.InDelta(t, 2.0, results[2].Distance, 1e-6)
}

func TestSimilaritySearch_Limit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	doc := newStoredDocument(t, store)

	chunks := []domain.Chunk{
		{ID: uuid.New(), Index: 0, Text: "a"},
		{ID: uuid.New(), Index: 1, Text: "b"},
	}
	require.NoError(t, store.CreateChunks(ctx, doc.ID, chunks))
	for _, chunk := range chunks {
		require.NoError(t, store.UpsertEmbedding(ctx, domain.Embedding{
			ChunkID: chunk.ID, Vector: []float32{1, 0}, ModelName: "m", Dimensions: 2,
		}))
	}

	results, err := store.SimilaritySearch(ctx, doc.ID, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	doc := newStoredDocument(t, store)

	chunks := []domain.Chunk{{ID: uuid.New(), Index: 0, Text: "c"}}
	require.NoError(t, store.CreateChunks(ctx, doc.ID, chunks))

	require.NoError(t, store.DeleteDocument(ctx, doc.ID))

	_, err := store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetChunks(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
