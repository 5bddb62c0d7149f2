package driven

import (
	"context"

	"github.com/tutorstack/docproc/internal/core/domain"
)

// DocumentParser converts raw bytes into plain text plus structural
// metadata. Failure is binary per document: a *domain.ParseError or
// success, never success-with-warnings.
type DocumentParser interface {
	// Parse extracts text from the raw content. The declared MIME type
	// may be empty; implementations fall back to extension and content
	// based detection.
	Parse(ctx context.Context, content []byte, filename, declaredMIME string) (*domain.ParsedDocument, error)
}

// FormatProbe is implemented by parsers that can cheaply pre-validate
// input without extracting text. Used to surface size and format
// errors synchronously before background processing starts.
type FormatProbe interface {
	// Probe returns a *domain.ParseError when the content could never
	// parse (too large, no matching format), nil otherwise.
	Probe(content []byte, filename, declaredMIME string) error
}

// FormatParser extracts text for one document format. Implementations
// live under internal/parsers and register with the parser registry.
type FormatParser interface {
	// Name identifies the parser variant in document metadata.
	Name() string

	// MIMETypes returns the MIME types this parser handles.
	MIMETypes() []string

	// Extensions returns the filename extensions (with leading dot,
	// lower case) this parser handles.
	Extensions() []string

	// Parse extracts text and format-specific metadata.
	Parse(ctx context.Context, content []byte, filename string) (*domain.ParsedDocument, error)
}
