package driving

import (
	"context"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
)

// Retriever ranks a document's stored chunks by semantic similarity to a
// free-text query. Results ground downstream LLM prompt construction.
type Retriever interface {
	// TopChunks returns up to limit chunks ordered by descending
	// similarity. Fails with domain.ErrNotReady when the document has
	// not completed processing, domain.ErrEmptyQuery for a blank query
	// and domain.ErrNoRelevantContext when nothing usable matches.
	TopChunks(ctx context.Context, documentID uuid.UUID, query string, limit int) ([]domain.RetrievedChunk, error)
}
