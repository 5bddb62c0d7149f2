// Package docx extracts text from Word documents (OOXML).
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.FormatParser = (*Parser)(nil)

// Parser handles DOCX documents.
type Parser struct{}

// New creates a new DOCX parser.
func New() *Parser {
	return &Parser{}
}

// Name identifies the parser variant in document metadata.
func (p *Parser) Name() string {
	return "docx"
}

// MIMETypes returns the MIME types this parser handles.
func (p *Parser) MIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Extensions returns the filename extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".docx"}
}

// Parse extracts paragraph text in document order and flattens table
// rows into pipe-joined lines. Core document properties are collected
// when present.
func (p *Parser) Parse(_ context.Context, content []byte, _ string) (*domain.ParsedDocument, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, domain.ErrInvalidInput
	}

	body, err := readZipEntry(reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, domain.ErrInvalidInput
	}

	text, paragraphCount, tableCount := extractBody(body)

	metadata := map[string]any{
		"paragraph_count": paragraphCount,
		"table_count":     tableCount,
	}
	collectCoreProperties(reader, metadata)

	return &domain.ParsedDocument{
		Text:     text,
		Metadata: metadata,
	}, nil
}

// documentXML mirrors the subset of word/document.xml we extract.
// Body children are decoded in order so paragraphs and tables
// interleave as authored.
type documentXML struct {
	Body bodyXML `xml:"body"`
}

type bodyXML struct {
	Blocks []blockXML `xml:",any"`
}

type blockXML struct {
	XMLName xml.Name
	Runs    []runXML `xml:"r"`
	Rows    []rowXML `xml:"tr"`
}

type rowXML struct {
	Cells []cellXML `xml:"tc"`
}

type cellXML struct {
	Paragraphs []paragraphXML `xml:"p"`
}

type paragraphXML struct {
	Runs []runXML `xml:"r"`
}

type runXML struct {
	Text []textXML `xml:"t"`
}

type textXML struct {
	Content string `xml:",chardata"`
}

// extractBody walks body blocks in order, emitting paragraph text and
// pipe-joined table rows. Empty paragraphs are dropped.
func extractBody(content []byte) (string, int, int) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", 0, 0
	}

	var lines []string
	paragraphs, tables := 0, 0

	for _, block := range doc.Body.Blocks {
		switch block.XMLName.Local {
		case "p":
			text := runText(block.Runs)
			if text != "" {
				lines = append(lines, text)
				paragraphs++
			}
		case "tbl":
			tables++
			for _, row := range block.Rows {
				cells := make([]string, 0, len(row.Cells))
				hasContent := false
				for _, cell := range row.Cells {
					var parts []string
					for _, para := range cell.Paragraphs {
						if t := runText(para.Runs); t != "" {
							parts = append(parts, t)
						}
					}
					cellText := strings.Join(parts, " ")
					if cellText != "" {
						hasContent = true
					}
					cells = append(cells, cellText)
				}
				if hasContent {
					lines = append(lines, strings.Join(cells, " | "))
				}
			}
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), paragraphs, tables
}

func runText(runs []runXML) string {
	var b strings.Builder
	for _, run := range runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// coreXML mirrors docProps/core.xml.
type coreXML struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Subject  string `xml:"subject"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

// collectCoreProperties copies core document properties into metadata
// when the archive carries them.
func collectCoreProperties(reader *zip.Reader, metadata map[string]any) {
	content, err := readZipEntry(reader, "docProps/core.xml")
	if err != nil || content == nil {
		return
	}

	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return
	}

	for key, value := range map[string]string{
		"title":    core.Title,
		"author":   core.Creator,
		"subject":  core.Subject,
		"created":  core.Created,
		"modified": core.Modified,
	} {
		if v := strings.TrimSpace(value); v != "" {
			metadata[key] = v
		}
	}
}

func readZipEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, domain.ErrInvalidInput
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, domain.ErrInvalidInput
		}
		return content, nil
	}
	return nil, nil
}
