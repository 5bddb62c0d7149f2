package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/core/ports/driving"
	"github.com/tutorstack/docproc/internal/logger"
)

// Ensure Retriever implements the interface.
var _ driving.Retriever = (*Retriever)(nil)

// overFetchFactor widens the similarity search so empty-text chunks can
// be dropped without starving the result set.
const overFetchFactor = 3

// Retriever ranks a document's chunks by semantic similarity to a query.
type Retriever struct {
	store        driven.DocumentStore
	orchestrator *Orchestrator
}

// NewRetriever creates a retriever. The orchestrator supplies query
// embeddings with the same model used for the document's chunks.
func NewRetriever(store driven.DocumentStore, orchestrator *Orchestrator) *Retriever {
	return &Retriever{store: store, orchestrator: orchestrator}
}

// TopChunks returns up to limit chunks ordered by descending similarity.
// Only completed documents can be searched; a blank query and an empty
// result set are both surfaced as distinct errors.
func (r *Retriever) TopChunks(ctx context.Context, documentID uuid.UUID, query string, limit int) ([]domain.RetrievedChunk, error) {
	doc, err := r.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.IsReady() {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrNotReady, doc.Status)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	if limit < 1 {
		limit = 1
	}

	vector, err := r.orchestrator.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	raw, err := r.store.SimilaritySearch(ctx, documentID, vector, limit*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	chunks := make([]domain.RetrievedChunk, 0, limit)
	for _, result := range raw {
		text := strings.TrimSpace(result.Chunk.Text)
		if text == "" {
			continue
		}

		similarity := 1.0 - result.Distance
		if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
			similarity = 0
		}
		if similarity < 0 {
			similarity = 0
		}

		chunks = append(chunks, domain.RetrievedChunk{
			ChunkID: result.Chunk.ID,
			Index:   result.Chunk.Index,
			Text:    text,
			Score:   similarity,
		})
		if len(chunks) >= limit {
			break
		}
	}

	if len(chunks) == 0 {
		return nil, domain.ErrNoRelevantContext
	}

	logger.Debug("retrieved %d chunks for document %s", len(chunks), documentID)
	return chunks, nil
}
