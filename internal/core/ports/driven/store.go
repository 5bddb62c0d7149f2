package driven

import (
	"context"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
)

// DocumentStore persists documents, chunks and embeddings.
// Backends: Postgres/pgvector for production, SQLite for single-node
// deployments, memory for tests. Each concurrent pipeline uses its own
// store session; sessions are never shared across pipelines.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error)

	// UpdateDocumentStatus transitions the document's processing status,
	// recording the error message and lifecycle timestamps.
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, errMsg string) error

	// CreateChunks stores the full chunk set for a document and updates
	// its total chunk count. Any previously stored chunks for the
	// document are replaced, never patched.
	CreateChunks(ctx context.Context, documentID uuid.UUID, chunks []domain.Chunk) error

	// GetChunks retrieves all chunks for a document ordered by index.
	GetChunks(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error)

	// ChunksWithoutEmbedding returns the document's chunks that have no
	// stored embedding yet, ordered by index. Used for resuming partial
	// embedding runs.
	ChunksWithoutEmbedding(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error)

	// UpsertEmbedding stores the embedding for a chunk, updating in place
	// when one already exists. Exactly one embedding per chunk holds.
	UpsertEmbedding(ctx context.Context, emb domain.Embedding) error

	// SimilaritySearch returns up to limit chunks of the document ordered
	// by ascending cosine distance to the query vector. Chunks without an
	// embedding are never returned.
	SimilaritySearch(ctx context.Context, documentID uuid.UUID, query []float32, limit int) ([]ChunkDistance, error)

	// DeleteDocument removes a document, cascading to its chunks and
	// their embeddings.
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// Close releases the underlying connections.
	Close() error
}

// ChunkDistance pairs a chunk with its cosine distance to a query vector.
type ChunkDistance struct {
	Chunk domain.Chunk

	// Distance is the cosine distance (0 = identical direction, up to 2
	// for anti-correlated vectors).
	Distance float64
}
