package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates a configuration rejected at construction
	// time (bad chunk sizes, unknown strategy, model/dimension mismatch).
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidTransition indicates an illegal processing status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Parsing errors.

	// ErrUnsupportedFormat indicates no parser matched the file.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge indicates the upload exceeds the configured ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyDocument indicates parsing yielded no usable text
	// (empty file, image-only PDF, fewer than 10 non-whitespace chars).
	ErrEmptyDocument = errors.New("document is empty or unextractable")

	// Provider errors.

	// ErrRateLimited indicates the embedding provider rejected the request
	// with a rate-limit response. Callers apply their own backoff policy.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderUnavailable indicates the provider client is not configured.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// Retrieval errors.

	// ErrNotReady indicates the document has not completed processing and
	// cannot serve similarity searches yet.
	ErrNotReady = errors.New("document is not ready for semantic search")

	// ErrEmptyQuery indicates a blank query after trimming.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrNoRelevantContext indicates similarity search found no chunk with
	// usable text. Surfaced explicitly so callers can distinguish "nothing
	// relevant" from an empty result.
	ErrNoRelevantContext = errors.New("no relevant context found")
)

// ParseError is the single typed failure for document parsing. Parsing is
// binary per document: success or one ParseError carrying the cause.
type ParseError struct {
	// Filename is the original upload name.
	Filename string

	// Err wraps the underlying sentinel (ErrUnsupportedFormat,
	// ErrFileTooLarge, ErrEmptyDocument) or the extraction failure.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError wraps err as the document-level parsing failure.
func NewParseError(filename string, err error) *ParseError {
	return &ParseError{Filename: filename, Err: err}
}

// EmbeddingError is raised when embedding generation fails for a whole
// document, as opposed to individual batches which are recorded in the
// run summary and skipped.
type EmbeddingError struct {
	DocumentID uuid.UUID
	Err        error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed document %s: %v", e.DocumentID, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
