package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/docproc/internal/adapters/driven/storage/memory"
	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

// fakeProvider is a deterministic in-process ProviderClient. Individual
// calls can be made to fail by call number.
type fakeProvider struct {
	mu         sync.Mutex
	embedCalls int
	batches    [][]string
	failCall   map[int]error // 1-based EmbedBatch call number to error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{failCall: make(map[int]error)}
}

// vectorFor derives a unit vector from the text so equal texts embed
// equally.
func vectorFor(text string) []float32 {
	sum := float32(0)
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{1, sum / (sum + 1), 0}
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string, opts driven.EmbedOptions) ([]driven.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.embedCalls++
	if err, ok := f.failCall[f.embedCalls]; ok {
		return nil, err
	}

	f.batches = append(f.batches, texts)
	results := make([]driven.EmbeddingResult, len(texts))
	for i, text := range texts {
		results[i] = driven.EmbeddingResult{
			Index:      i,
			Vector:     vectorFor(text),
			Model:      opts.Model,
			TokensUsed: len(text) / 4,
		}
	}
	return results, nil
}

func (f *fakeProvider) Embed(ctx context.Context, text string, opts driven.EmbedOptions) (*driven.EmbeddingResult, error) {
	results, err := f.EmbedBatch(ctx, []string{text}, opts)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

func (f *fakeProvider) Complete(_ context.Context, req driven.CompletionRequest) (*driven.CompletionResult, error) {
	return &driven.CompletionResult{Content: "echo: " + req.Prompt, Model: req.Model, FinishReason: "stop"}, nil
}

func (f *fakeProvider) CompleteBatch(ctx context.Context, reqs []driven.CompletionRequest) ([]driven.CompletionResult, error) {
	results := make([]driven.CompletionResult, len(reqs))
	for i, req := range reqs {
		r, _ := f.Complete(ctx, req)
		results[i] = *r
	}
	return results, nil
}

func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

// storedDocument saves a pending document.
func storedDocument(t *testing.T, store *memory.Store) *domain.Document {
	t.Helper()
	doc := &domain.Document{
		ID:       uuid.New(),
		Filename: "lecture.txt",
		FileType: "text/plain",
		Status:   domain.StatusPending,
	}
	require.NoError(t, store.SaveDocument(context.Background(), doc))
	return doc
}

// documentAtChunking advances a document to the chunking stage with the
// given chunk texts persisted.
func documentAtChunking(t *testing.T, store *memory.Store, texts ...string) (*domain.Document, []domain.Chunk) {
	t.Helper()
	ctx := context.Background()
	doc := storedDocument(t, store)

	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusParsing, ""))
	require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusChunking, ""))

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{ID: uuid.New(), Index: i, Text: text}
	}
	require.NoError(t, store.CreateChunks(ctx, doc.ID, chunks))

	stored, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	return doc, stored
}
