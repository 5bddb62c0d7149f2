// Package memory provides an in-memory document store for tests and
// ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.DocumentStore = (*Store)(nil)

// Store is an in-memory implementation of driven.DocumentStore.
type Store struct {
	mu         sync.RWMutex
	documents  map[uuid.UUID]*domain.Document
	chunks     map[uuid.UUID][]domain.Chunk    // by document ID, ordered by index
	embeddings map[uuid.UUID]*domain.Embedding // by chunk ID
}

// NewStore creates a new in-memory document store.
func NewStore() *Store {
	return &Store{
		documents:  make(map[uuid.UUID]*domain.Document),
		chunks:     make(map[uuid.UUID][]domain.Chunk),
		embeddings: make(map[uuid.UUID]*domain.Embedding),
	}
}

// SaveDocument stores or updates a document.
func (s *Store) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *doc
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	copied.UpdatedAt = time.Now().UTC()
	s.documents[doc.ID] = &copied
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

// UpdateDocumentStatus transitions the document's processing status.
func (s *Store) UpdateDocumentStatus(_ context.Context, id uuid.UUID, status domain.ProcessingStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	return doc.Transition(status, errMsg)
}

// CreateChunks replaces the document's chunk set and updates its total
// chunk count. Embeddings of replaced chunks are dropped with them.
func (s *Store) CreateChunks(_ context.Context, documentID uuid.UUID, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return domain.ErrNotFound
	}

	for _, old := range s.chunks[documentID] {
		delete(s.embeddings, old.ID)
	}

	stored := make([]domain.Chunk, len(chunks))
	now := time.Now().UTC()
	for i, chunk := range chunks {
		chunk.DocumentID = documentID
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		stored[i] = chunk
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })

	s.chunks[documentID] = stored
	doc.TotalChunks = len(stored)
	doc.UpdatedAt = now
	return nil
}

// GetChunks retrieves all chunks for a document ordered by index.
func (s *Store) GetChunks(_ context.Context, documentID uuid.UUID) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.documents[documentID]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Chunk(nil), s.chunks[documentID]...), nil
}

// ChunksWithoutEmbedding returns chunks that have no stored embedding.
func (s *Store) ChunksWithoutEmbedding(_ context.Context, documentID uuid.UUID) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.documents[documentID]; !ok {
		return nil, domain.ErrNotFound
	}

	var missing []domain.Chunk
	for _, chunk := range s.chunks[documentID] {
		if _, ok := s.embeddings[chunk.ID]; !ok {
			missing = append(missing, chunk)
		}
	}
	return missing, nil
}

// UpsertEmbedding stores the embedding for a chunk, updating in place.
func (s *Store) UpsertEmbedding(_ context.Context, emb domain.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.chunkExists(emb.ChunkID) {
		return fmt.Errorf("%w: chunk %s", domain.ErrNotFound, emb.ChunkID)
	}

	copied := emb
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	s.embeddings[emb.ChunkID] = &copied
	return nil
}

// SimilaritySearch brute-forces cosine distance over the document's
// embedded chunks.
func (s *Store) SimilaritySearch(_ context.Context, documentID uuid.UUID, query []float32, limit int) ([]driven.ChunkDistance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.documents[documentID]; !ok {
		return nil, domain.ErrNotFound
	}

	var results []driven.ChunkDistance
	for _, chunk := range s.chunks[documentID] {
		emb, ok := s.embeddings[chunk.ID]
		if !ok {
			continue
		}
		results = append(results, driven.ChunkDistance{
			Chunk:    chunk,
			Distance: cosineDistance(query, emb.Vector),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteDocument removes a document, its chunks and their embeddings.
func (s *Store) DeleteDocument(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return domain.ErrNotFound
	}
	for _, chunk := range s.chunks[id] {
		delete(s.embeddings, chunk.ID)
	}
	delete(s.chunks, id)
	delete(s.documents, id)
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

func (s *Store) chunkExists(chunkID uuid.UUID) bool {
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if chunk.ID == chunkID {
				return true
			}
		}
	}
	return false
}

// cosineDistance returns 1 - cosine similarity. Mismatched or zero
// vectors yield the maximum distance of 2.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
