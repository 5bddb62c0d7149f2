package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document represents an uploaded document owned by a subject and a user.
// It is the parent of all chunks and embeddings derived from the file and
// tracks the processing lifecycle from upload to searchability.
type Document struct {
	// ID is the unique identifier for the document.
	ID uuid.UUID

	// SubjectID links to the subject the document was uploaded under.
	SubjectID int64

	// OwnerID links to the user who uploaded the document.
	OwnerID int64

	// Filename is the original name of the uploaded file.
	Filename string

	// FileType is the declared MIME type of the file.
	FileType string

	// FileSize is the size of the original file in bytes.
	FileSize int64

	// TotalChunks is the number of chunks created from this document.
	TotalChunks int

	// Status is the current processing state.
	Status ProcessingStatus

	// ProcessingError holds the failure message when Status is Failed,
	// or a non-fatal note when the document completed with gaps.
	ProcessingError string

	// ProcessingStartedAt is when pipeline processing began.
	ProcessingStartedAt *time.Time

	// ProcessingCompletedAt is when processing reached a terminal state.
	ProcessingCompletedAt *time.Time

	// Metadata contains format-specific information merged from the
	// parser output (page count, author, encoding, content hash, ...).
	Metadata map[string]any

	// CreatedAt is when the document was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time
}

// IsReady reports whether the document can serve similarity searches.
func (d *Document) IsReady() bool {
	return d.Status == StatusCompleted
}

// ProcessingDuration returns the wall time spent processing, or zero if
// the pipeline has not finished.
func (d *Document) ProcessingDuration() time.Duration {
	if d.ProcessingStartedAt == nil || d.ProcessingCompletedAt == nil {
		return 0
	}
	return d.ProcessingCompletedAt.Sub(*d.ProcessingStartedAt)
}

// Chunk is a contiguous slice of a document's extracted text, sized for
// embedding. Chunks are immutable once persisted; re-chunking replaces the
// full set for a document.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID uuid.UUID

	// DocumentID links to the parent Document.
	DocumentID uuid.UUID

	// Index is the 0-based, gapless position within the document.
	Index int

	// Text is the chunk content.
	Text string

	// StartChar is the starting offset into the normalised source text.
	StartChar int

	// EndChar is the ending offset into the normalised source text.
	EndChar int

	// Metadata records the producing strategy and per-chunk diagnostics.
	Metadata map[string]any

	// CreatedAt is when the chunk was persisted.
	CreatedAt time.Time
}

// Embedding is the vector representation of one chunk. Exactly one
// embedding exists per chunk; re-embedding updates in place.
type Embedding struct {
	// ChunkID links to the chunk this vector represents.
	ChunkID uuid.UUID

	// Vector is the fixed-dimension embedding.
	Vector []float32

	// ModelName is the model identifier used to generate the vector.
	ModelName string

	// ModelVersion is the full model version reported by the provider.
	ModelVersion string

	// Dimensions is the length of Vector at write time.
	Dimensions int

	// CreatedAt is when the embedding was generated.
	CreatedAt time.Time
}

// RetrievedChunk is a similarity-search result handed to prompt
// construction. Score is a cosine similarity in [0, 1]; negative raw
// similarities are clamped to 0.
type RetrievedChunk struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Index   int       `json:"chunk_index"`
	Text    string    `json:"text"`
	Score   float64   `json:"score"`
}

// ParsedDocument is the transient output of the document parser: plain
// text plus format-specific structural metadata.
type ParsedDocument struct {
	// Text is the extracted plain text.
	Text string

	// Metadata holds format-specific details (pages, author, encoding,
	// headers) plus the common keys the parser always appends:
	// original_filename, file_size, file_hash and parser_used.
	Metadata map[string]any
}
