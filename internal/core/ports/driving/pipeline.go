package driving

import (
	"context"

	"github.com/google/uuid"
)

// ProcessOptions overrides the configured chunking parameters for one run.
// Zero values fall back to service configuration.
type ProcessOptions struct {
	Strategy     string
	ChunkSize    int
	ChunkOverlap int
}

// PipelineRunner sequences parse → chunk → embed for one document,
// driving the processing status state machine. Stages execute strictly
// in order with per-stage persistence commits; a failure at any stage
// transitions the document to failed and halts the run.
type PipelineRunner interface {
	// Process runs the full pipeline for the stored document with the
	// given raw content. Re-running replaces the document's chunk set.
	Process(ctx context.Context, documentID uuid.UUID, content []byte, opts ProcessOptions) error

	// ProcessAsync enqueues Process on the work queue and returns the
	// task ID. Validation errors (size, format) are surfaced
	// synchronously before any background work starts.
	ProcessAsync(ctx context.Context, documentID uuid.UUID, content []byte, opts ProcessOptions) (string, error)

	// Reprocess resets a terminal document and runs the pipeline again
	// with the given content. The previous chunk set is replaced.
	Reprocess(ctx context.Context, documentID uuid.UUID, content []byte, opts ProcessOptions) error

	// Resume embeds the chunks of a document that still lack a stored
	// vector, keeping the existing chunk set. A no-op when every chunk
	// is already embedded.
	Resume(ctx context.Context, documentID uuid.UUID) error
}
