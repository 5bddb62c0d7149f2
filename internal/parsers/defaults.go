package parsers

import (
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/parsers/docx"
	"github.com/tutorstack/docproc/internal/parsers/markdown"
	"github.com/tutorstack/docproc/internal/parsers/pdf"
	"github.com/tutorstack/docproc/internal/parsers/plaintext"
)

// NewDefaultRegistry wires the built-in format parsers. Markdown is
// registered before plaintext so .md files are not swallowed by the
// text/plain fallback.
func NewDefaultRegistry(opts ...Option) *Registry {
	return NewRegistry([]driven.FormatParser{
		pdf.New(),
		docx.New(),
		markdown.New(),
		plaintext.New(),
	}, opts...)
}
