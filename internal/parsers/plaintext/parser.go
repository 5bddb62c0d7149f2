// Package plaintext extracts text from plain text files with byte
// encoding detection.
package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/logger"
)

// Ensure Parser implements the interface.
var _ driven.FormatParser = (*Parser)(nil)

// Parser handles plain text documents.
type Parser struct{}

// New creates a new plain text parser.
func New() *Parser {
	return &Parser{}
}

// Name identifies the parser variant in document metadata.
func (p *Parser) Name() string {
	return "plaintext"
}

// MIMETypes returns the MIME types this parser handles.
func (p *Parser) MIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
	}
}

// Extensions returns the filename extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".txt", ".text", ".csv", ".log"}
}

// Parse decodes the content using the detected byte encoding. When
// detection or decoding fails the bytes are reinterpreted as UTF-8 with
// lossy replacement and the fallback is flagged in metadata.
func (p *Parser) Parse(_ context.Context, content []byte, filename string) (*domain.ParsedDocument, error) {
	metadata := map[string]any{}

	text, encoding, confidence, ok := decode(content)
	if ok {
		metadata["encoding"] = encoding
		metadata["encoding_confidence"] = confidence
	} else {
		logger.Debug("plaintext: encoding detection failed for %s, using lossy utf-8", filename)
		text = strings.ToValidUTF8(string(content), "�")
		metadata["encoding"] = "utf-8 (fallback)"
	}

	return &domain.ParsedDocument{
		Text:     text,
		Metadata: metadata,
	}, nil
}

// decode detects the byte encoding and decodes the content. Returns
// false when no decoder can handle the bytes.
func decode(content []byte) (text, encoding string, confidence int, ok bool) {
	// Pure ASCII and valid UTF-8 need no transformation.
	if utf8.Valid(content) {
		return string(content), "utf-8", 100, true
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(content)
	if err != nil {
		return "", "", 0, false
	}

	enc, err := ianaindex.IANA.Encoding(result.Charset)
	if err != nil || enc == nil {
		return "", "", 0, false
	}

	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return "", "", 0, false
	}

	return string(decoded), strings.ToLower(result.Charset), result.Confidence, true
}
