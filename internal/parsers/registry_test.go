package parsers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

// fakeParser records whether it was invoked and returns canned text.
type fakeParser struct {
	name   string
	mimes  []string
	exts   []string
	text   string
	err    error
	called bool
}

func (f *fakeParser) Name() string        { return f.name }
func (f *fakeParser) MIMETypes() []string { return f.mimes }
func (f *fakeParser) Extensions() []string {
	return f.exts
}

func (f *fakeParser) Parse(_ context.Context, _ []byte, _ string) (*domain.ParsedDocument, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ParsedDocument{Text: f.text, Metadata: map[string]any{}}, nil
}

func newTestRegistry(parsers ...driven.FormatParser) *Registry {
	return NewRegistry(parsers)
}

func TestParse_DeclaredMIMEWins(t *testing.T) {
	pdfParser := &fakeParser{name: "pdf", mimes: []string{"application/pdf"}, exts: []string{".pdf"}, text: "pdf content extracted"}
	txtParser := &fakeParser{name: "plaintext", mimes: []string{"text/plain"}, exts: []string{".txt"}, text: "plain text content"}
	registry := newTestRegistry(pdfParser, txtParser)

	// Declared MIME says pdf even though the extension says txt.
	result, err := registry.Parse(context.Background(), []byte("raw bytes here"), "notes.txt", "application/pdf")
	require.NoError(t, err)

	assert.True(t, pdfParser.called)
	assert.False(t, txtParser.called)
	assert.Equal(t, "pdf content extracted", result.Text)
}

func TestParse_ExtensionFallback(t *testing.T) {
	docxParser := &fakeParser{name: "docx", mimes: []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, exts: []string{".docx"}, text: "docx body text here"}
	registry := newTestRegistry(docxParser)

	result, err := registry.Parse(context.Background(), []byte("raw"), "report.DOCX", "")
	require.NoError(t, err)
	assert.True(t, docxParser.called)
	assert.Equal(t, "docx", result.Metadata["parser_used"])
}

func TestParse_ContentSniffFallback(t *testing.T) {
	pdfParser := &fakeParser{name: "pdf", mimes: []string{"application/pdf"}, exts: []string{".pdf"}, text: "pdf content extracted"}
	registry := newTestRegistry(pdfParser)

	// No declared MIME, no useful extension; content sniff sees the
	// PDF magic bytes.
	content := []byte("%PDF-1.7 and then some body content for sniffing")
	_, err := registry.Parse(context.Background(), content, "upload.bin", "")
	require.NoError(t, err)
	assert.True(t, pdfParser.called)
}

func TestParse_UTF8Probe(t *testing.T) {
	txtParser := &fakeParser{name: "plaintext", mimes: []string{"text/plain"}, exts: []string{".txt"}, text: "plain text content"}
	registry := newTestRegistry(txtParser)

	_, err := registry.Parse(context.Background(), []byte("just some readable words in no known format"), "mystery", "")
	require.NoError(t, err)
	assert.True(t, txtParser.called)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	registry := newTestRegistry()

	result, err := registry.Parse(context.Background(), []byte{0x00, 0x01, 0x02, 0xFF}, "data.xyz", "application/octet-stream")
	require.Error(t, err)
	assert.Nil(t, result)

	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Equal(t, "data.xyz", parseErr.Filename)
}

func TestParse_FileTooLarge(t *testing.T) {
	txtParser := &fakeParser{name: "plaintext", mimes: []string{"text/plain"}, exts: []string{".txt"}, text: "x"}
	registry := NewRegistry([]driven.FormatParser{txtParser}, WithMaxFileSize(10))

	result, err := registry.Parse(context.Background(), []byte("this content is over ten bytes"), "big.txt", "text/plain")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
	assert.False(t, txtParser.called, "size guard runs before any parsing attempt")
}

func TestParse_MinimumTextPostCondition(t *testing.T) {
	// Nine non-whitespace characters spread over whitespace.
	thin := &fakeParser{name: "plaintext", mimes: []string{"text/plain"}, exts: []string{".txt"}, text: "  a b c d e f g h i \n\t"}
	registry := newTestRegistry(thin)

	result, err := registry.Parse(context.Background(), []byte("content"), "thin.txt", "text/plain")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}

func TestParse_CommonMetadata(t *testing.T) {
	txtParser := &fakeParser{name: "plaintext", mimes: []string{"text/plain"}, exts: []string{".txt"}, text: "enough text to pass the check"}
	registry := newTestRegistry(txtParser)

	content := []byte("hello world content")
	result, err := registry.Parse(context.Background(), content, "notes.txt", "text/plain")
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", result.Metadata["original_filename"])
	assert.Equal(t, len(content), result.Metadata["file_size"])
	assert.Equal(t, "plaintext", result.Metadata["parser_used"])

	hash, ok := result.Metadata["file_hash"].(string)
	require.True(t, ok)
	assert.Len(t, hash, 64)
	assert.Equal(t, strings.ToLower(hash), hash)
}

func TestParse_MIMEParametersStripped(t *testing.T) {
	txtParser := &fakeParser{name: "plaintext", mimes: []string{"text/plain"}, exts: []string{".txt"}, text: "enough text to pass the check"}
	registry := newTestRegistry(txtParser)

	_, err := registry.Parse(context.Background(), []byte("body"), "notes.txt", "Text/Plain; charset=utf-8")
	require.NoError(t, err)
	assert.True(t, txtParser.called)
}

func TestParse_FormatParserErrorWrapped(t *testing.T) {
	failing := &fakeParser{name: "pdf", mimes: []string{"application/pdf"}, exts: []string{".pdf"}, err: domain.ErrEmptyDocument}
	registry := newTestRegistry(failing)

	_, err := registry.Parse(context.Background(), []byte("%PDF-"), "scan.pdf", "application/pdf")
	require.Error(t, err)

	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}
