// Package markdown extracts plain text from Markdown documents.
// Structure (headers, code blocks, tables) is harvested from the raw
// lines before markup is stripped, so the metadata reflects the source
// even though the text does not.
package markdown

import (
	"bytes"
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.FormatParser = (*Parser)(nil)

// Parser handles Markdown documents.
type Parser struct {
	md goldmark.Markdown
}

// New creates a new Markdown parser.
func New() *Parser {
	return &Parser{md: goldmark.New()}
}

// Name identifies the parser variant in document metadata.
func (p *Parser) Name() string {
	return "markdown"
}

// MIMETypes returns the MIME types this parser handles.
func (p *Parser) MIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Extensions returns the filename extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".md", ".markdown"}
}

// header is one harvested heading line.
type header struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Parse harvests structure from the raw lines, then renders the
// markdown and strips tags to produce plain text.
func (p *Parser) Parse(_ context.Context, content []byte, _ string) (*domain.ParsedDocument, error) {
	raw := string(content)

	headers, hasCode, hasTables := scanStructure(raw)

	text, err := p.renderPlainText(content)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"has_code_blocks": hasCode,
		"has_tables":      hasTables,
		"header_count":    len(headers),
	}
	if len(headers) > 0 {
		metadata["headers"] = headers
	}

	return &domain.ParsedDocument{
		Text:     text,
		Metadata: metadata,
	}, nil
}

var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// scanStructure walks raw lines harvesting headers, code fence
// presence and table-like-line presence. Lines inside code fences are
// not treated as headers.
func scanStructure(raw string) ([]header, bool, bool) {
	var headers []header
	hasCode, hasTables := false, false
	inFence := false

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			hasCode = true
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		if m := headerPattern.FindStringSubmatch(trimmed); m != nil {
			headers = append(headers, header{
				Level: len(m[1]),
				Text:  strings.TrimSpace(m[2]),
			})
			continue
		}

		if strings.HasPrefix(trimmed, "|") && strings.Count(trimmed, "|") >= 2 {
			hasTables = true
		}
	}

	return headers, hasCode, hasTables
}

var (
	blockTags  = regexp.MustCompile(`</(?:p|h[1-6]|li|blockquote|pre|tr|div)>`)
	brTags     = regexp.MustCompile(`<br\s*/?>`)
	anyTag     = regexp.MustCompile(`<[^>]*>`)
	multiBlank = regexp.MustCompile(`\n{3,}`)
)

// renderPlainText converts markdown to HTML and strips the tags.
// Rendering first lets goldmark resolve links, emphasis and entities
// instead of regex guesswork over the raw source.
func (p *Parser) renderPlainText(content []byte) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert(content, &buf); err != nil {
		return "", err
	}

	out := buf.String()
	out = brTags.ReplaceAllString(out, "\n")
	out = blockTags.ReplaceAllString(out, "\n")
	out = anyTag.ReplaceAllString(out, "")
	out = html.UnescapeString(out)
	out = multiBlank.ReplaceAllString(out, "\n\n")

	// Trim trailing whitespace per line left behind by stripped tags.
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
