// Package parsers routes raw document bytes to a format parser and
// enforces the shared parsing contract: size ceiling, format
// detection, common metadata and the minimum-text post-condition.
package parsers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/logger"
)

// DefaultMaxFileSize is the parsing size ceiling when none is configured.
const DefaultMaxFileSize = 50 * 1024 * 1024

// minTextChars is the minimum number of non-whitespace characters a
// parsed document must yield.
const minTextChars = 10

// Ensure Registry implements the interfaces.
var (
	_ driven.DocumentParser = (*Registry)(nil)
	_ driven.FormatProbe    = (*Registry)(nil)
)

// Registry dispatches to format parsers by MIME type and extension.
type Registry struct {
	parsers     []driven.FormatParser
	byMIME      map[string]driven.FormatParser
	byExtension map[string]driven.FormatParser
	maxFileSize int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxFileSize overrides the default 50MB size ceiling.
func WithMaxFileSize(limit int64) Option {
	return func(r *Registry) {
		if limit > 0 {
			r.maxFileSize = limit
		}
	}
}

// NewRegistry creates a registry with the given format parsers.
// Earlier parsers win MIME/extension collisions.
func NewRegistry(parsers []driven.FormatParser, opts ...Option) *Registry {
	r := &Registry{
		parsers:     parsers,
		byMIME:      make(map[string]driven.FormatParser),
		byExtension: make(map[string]driven.FormatParser),
		maxFileSize: DefaultMaxFileSize,
	}

	for _, p := range parsers {
		for _, m := range p.MIMETypes() {
			if _, exists := r.byMIME[m]; !exists {
				r.byMIME[m] = p
			}
		}
		for _, ext := range p.Extensions() {
			if _, exists := r.byExtension[ext]; !exists {
				r.byExtension[ext] = p
			}
		}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parse extracts text from the raw content. Detection order: declared
// MIME type, then filename extension, then MIME guess from filename,
// then content sniff, then a UTF-8 decodability probe. The first match
// wins. All failures surface as a single *domain.ParseError.
func (r *Registry) Parse(ctx context.Context, content []byte, filename, declaredMIME string) (*domain.ParsedDocument, error) {
	if int64(len(content)) > r.maxFileSize {
		return nil, domain.NewParseError(filename, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			domain.ErrFileTooLarge, len(content), r.maxFileSize))
	}

	parser := r.detect(content, filename, declaredMIME)
	if parser == nil {
		return nil, domain.NewParseError(filename, fmt.Errorf("%w: %q (declared MIME %q)",
			domain.ErrUnsupportedFormat, filename, declaredMIME))
	}

	logger.Debug("parsing %s with %s parser", filename, parser.Name())

	parsed, err := parser.Parse(ctx, content, filename)
	if err != nil {
		return nil, domain.NewParseError(filename, err)
	}

	if countNonWhitespace(parsed.Text) < minTextChars {
		return nil, domain.NewParseError(filename, domain.ErrEmptyDocument)
	}

	if parsed.Metadata == nil {
		parsed.Metadata = make(map[string]any)
	}
	hash := sha256.Sum256(content)
	parsed.Metadata["original_filename"] = filename
	parsed.Metadata["file_size"] = len(content)
	parsed.Metadata["file_hash"] = hex.EncodeToString(hash[:])
	parsed.Metadata["parser_used"] = parser.Name()

	return parsed, nil
}

// Probe pre-validates content without parsing it: the size guard and
// format detection run, extraction does not.
func (r *Registry) Probe(content []byte, filename, declaredMIME string) error {
	if int64(len(content)) > r.maxFileSize {
		return domain.NewParseError(filename, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			domain.ErrFileTooLarge, len(content), r.maxFileSize))
	}
	if r.detect(content, filename, declaredMIME) == nil {
		return domain.NewParseError(filename, fmt.Errorf("%w: %q (declared MIME %q)",
			domain.ErrUnsupportedFormat, filename, declaredMIME))
	}
	return nil
}

// detect resolves the format parser for the content. Each step falls
// through to the next only when it yields no match.
func (r *Registry) detect(content []byte, filename, declaredMIME string) driven.FormatParser {
	// 1. Declared MIME type.
	if declaredMIME != "" {
		if p, ok := r.byMIME[normalizeMIME(declaredMIME)]; ok {
			return p
		}
	}

	// 2. Filename extension.
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if p, ok := r.byExtension[ext]; ok {
			return p
		}

		// 3. MIME guess from the filename extension.
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			if p, ok := r.byMIME[normalizeMIME(guessed)]; ok {
				return p
			}
		}
	}

	// 4. Content sniff.
	if sniffed := mimetype.Detect(content); sniffed != nil {
		for m := sniffed; m != nil; m = m.Parent() {
			if p, ok := r.byMIME[normalizeMIME(m.String())]; ok {
				return p
			}
		}
	}

	// 5. Raw UTF-8 decodability probe: valid text falls back to the
	// plain text parser when one is registered.
	if utf8.Valid(content) {
		if p, ok := r.byMIME["text/plain"]; ok {
			return p
		}
	}

	return nil
}

// normalizeMIME lowercases and strips parameters (charset etc).
func normalizeMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

func countNonWhitespace(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			n++
		}
	}
	return n
}
