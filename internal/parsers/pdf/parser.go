// Package pdf extracts text from PDF documents page by page.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/logger"
)

// Ensure Parser implements the interface.
var _ driven.FormatParser = (*Parser)(nil)

// Parser handles PDF documents. Each page's text is prefixed with a
// [Page N] marker so chunk provenance survives splitting.
type Parser struct{}

// New creates a new PDF parser.
func New() *Parser {
	return &Parser{}
}

// Name identifies the parser variant in document metadata.
func (p *Parser) Name() string {
	return "pdf"
}

// MIMETypes returns the MIME types this parser handles.
func (p *Parser) MIMETypes() []string {
	return []string{"application/pdf"}
}

// Extensions returns the filename extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".pdf"}
}

// Parse extracts per-page text. A page whose extraction fails is
// replaced with a placeholder rather than aborting the document; a PDF
// with zero extractable pages (image-only scans) fails with
// domain.ErrEmptyDocument.
func (p *Parser) Parse(ctx context.Context, content []byte, filename string) (*domain.ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, domain.ErrEmptyDocument
	}

	pages := make([]string, 0, numPages)
	extracted := 0

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := extractPage(reader, i)
		if text == "" {
			logger.Debug("pdf: page %d of %s yielded no text", i, filename)
			pages = append(pages, fmt.Sprintf("[Page %d]\n[Text extraction failed]", i))
			continue
		}

		pages = append(pages, fmt.Sprintf("[Page %d]\n%s", i, text))
		extracted++
	}

	if extracted == 0 {
		return nil, domain.ErrEmptyDocument
	}

	metadata := map[string]any{
		"page_count":      numPages,
		"pages_extracted": extracted,
	}
	collectTrailerInfo(reader, metadata)

	return &domain.ParsedDocument{
		Text:     strings.Join(pages, "\n\n"),
		Metadata: metadata,
	}, nil
}

// extractPage pulls plain text from one page, absorbing panics from
// malformed page content streams.
func extractPage(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}

	content, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(content)
}

// collectTrailerInfo copies title/author/dates from the document info
// dictionary into metadata when present.
func collectTrailerInfo(reader *pdf.Reader, metadata map[string]any) {
	defer func() {
		// Malformed trailers should not fail the document.
		_ = recover()
	}()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return
	}

	fields := map[string]string{
		"Title":        "title",
		"Author":       "author",
		"Subject":      "subject",
		"CreationDate": "creation_date",
		"ModDate":      "modification_date",
	}
	for pdfKey, metaKey := range fields {
		if v := info.Key(pdfKey); !v.IsNull() {
			if s := strings.TrimSpace(v.Text()); s != "" {
				metadata[metaKey] = s
			}
		}
	}
}
