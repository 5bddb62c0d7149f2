package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/docproc/internal/adapters/driven/storage/memory"
	"github.com/tutorstack/docproc/internal/core/domain"
)

// embeddedChunk pairs a chunk text with the vector stored for it.
type embeddedChunk struct {
	text   string
	vector []float32
}

// completedDocument stores a document in completed status with the
// given chunks embedded.
func completedDocument(t *testing.T, store *memory.Store, entries []embeddedChunk) (*domain.Document, []domain.Chunk) {
	t.Helper()
	ctx := context.Background()

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.text
	}
	doc, chunks := documentAtChunking(t, store, texts...)

	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusEmbedding, ""))
	for i, e := range entries {
		require.NoError(t, store.UpsertEmbedding(ctx, domain.Embedding{
			ChunkID:    chunks[i].ID,
			Vector:     e.vector,
			ModelName:  "text-embedding-3-small",
			Dimensions: len(e.vector),
		}))
	}
	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusCompleted, ""))
	return doc, chunks
}

func newTestRetriever(t *testing.T, store *memory.Store, provider *fakeProvider) *Retriever {
	t.Helper()
	o, err := NewOrchestrator(store, provider, "text-embedding-3-small", 1536)
	require.NoError(t, err)
	return NewRetriever(store, o)
}

func TestTopChunks_RequiresCompletedDocument(t *testing.T) {
	store := memory.NewStore()
	provider := newFakeProvider()
	r := newTestRetriever(t, store, provider)

	doc := storedDocument(t, store)

	_, err := r.TopChunks(context.Background(), doc.ID, "what is mitosis", 3)
	require.ErrorIs(t, err, domain.ErrNotReady)
	assert.Zero(t, provider.calls(), "no embedding traffic for unready documents")
}

func TestTopChunks_UnknownDocument(t *testing.T) {
	store := memory.NewStore()
	r := newTestRetriever(t, store, newFakeProvider())

	_, err := r.TopChunks(context.Background(), uuid.New(), "anything", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTopChunks_RejectsBlankQuery(t *testing.T) {
	store := memory.NewStore()
	provider := newFakeProvider()
	r := newTestRetriever(t, store, provider)

	doc, _ := completedDocument(t, store, []embeddedChunk{
		{text: "cells divide during mitosis", vector: []float32{1, 0.5, 0}},
	})

	_, err := r.TopChunks(context.Background(), doc.ID, "   \n\t ", 3)
	require.ErrorIs(t, err, domain.ErrEmptyQuery)
	assert.Zero(t, provider.calls())
}

func TestTopChunks_RanksBySimilarityAndClampsScores(t *testing.T) {
	store := memory.NewStore()
	provider := newFakeProvider()
	r := newTestRetriever(t, store, provider)

	query := "what happens during mitosis"
	queryVec := vectorFor(query)

	doc, chunks := completedDocument(t, store, []embeddedChunk{
		// Same direction as the query: distance 0, score 1.
		{text: "mitosis splits one cell into two", vector: queryVec},
		// Orthogonal: distance 1, score 0.
		{text: "the syllabus lists three exams", vector: []float32{0, 0, 1}},
		// Opposite direction: distance 2, raw similarity -1, clamped to 0.
		{text: "unrelated administrative note", vector: []float32{-queryVec[0], -queryVec[1], -queryVec[2]}},
	})

	got, err := r.TopChunks(context.Background(), doc.ID, query, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, chunks[0].ID, got[0].ChunkID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 0.0, got[1].Score, 1e-9)
	assert.InDelta(t, 0.0, got[2].Score, 1e-9)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestTopChunks_SkipsEmptyTextChunks(t *testing.T) {
	store := memory.NewStore()
	provider := newFakeProvider()
	r := newTestRetriever(t, store, provider)

	query := "key definition"
	queryVec := vectorFor(query)

	// The closest chunk has whitespace-only text and must be skipped.
	doc, chunks := completedDocument(t, store, []embeddedChunk{
		{text: "   \n ", vector: queryVec},
		{text: "a gene is a unit of heredity", vector: []float32{0, 1, 0}},
	})

	got, err := r.TopChunks(context.Background(), doc.ID, query, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[1].ID, got[0].ChunkID)
	assert.Equal(t, "a gene is a unit of heredity", got[0].Text)
}

func TestTopChunks_ClampsLimitToOne(t *testing.T) {
	store := memory.NewStore()
	provider := newFakeProvider()
	r := newTestRetriever(t, store, provider)

	query := "overview"
	doc, _ := completedDocument(t, store, []embeddedChunk{
		{text: "first chunk of the lecture", vector: vectorFor(query)},
		{text: "second chunk of the lecture", vector: []float32{0, 1, 0}},
	})

	got, err := r.TopChunks(context.Background(), doc.ID, query, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTopChunks_NoEmbeddedChunks(t *testing.T) {
	store := memory.NewStore()
	provider := newFakeProvider()
	r := newTestRetriever(t, store, provider)

	doc, _ := completedDocument(t, store, nil)

	_, err := r.TopChunks(context.Background(), doc.ID, "anything at all", 3)
	assert.ErrorIs(t, err, domain.ErrNoRelevantContext)
}
