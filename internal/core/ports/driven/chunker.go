package driven

import "github.com/tutorstack/docproc/internal/core/domain"

// TextChunker splits plain text into an ordered sequence of overlapping
// chunks. Configuration (strategy, sizes) is validated when the chunker
// is constructed; chunking valid text cannot fail. Chunking an empty
// string yields an empty sequence.
type TextChunker interface {
	// Chunk splits text into chunks with 0-based contiguous indices.
	// The metadata map is merged into every produced chunk.
	Chunk(text string, metadata map[string]any) []domain.Chunk
}
