package chunkers

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
)

// paragraphSeparator is two chars of "\n\n" between joined paragraphs.
const paragraphSeparator = "\n\n"

var blankLines = regexp.MustCompile(`\n\s*\n`)

// chunkParagraphs splits on blank lines and accumulates paragraphs
// until adding the next one would exceed ChunkSize. Overlap carries
// forward only the single trailing paragraph, and only when that
// paragraph alone fits within ChunkOverlap. Falls back to sentence
// chunking when the text has no paragraph boundaries.
func (c *Chunker) chunkParagraphs(text string, metadata map[string]any) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return []domain.Chunk{}
	}

	// Split before normalizing so blank-line structure survives; each
	// paragraph is then normalized on its own.
	var paragraphs []string
	for _, p := range blankLines.Split(text, -1) {
		if p = normalize(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	if len(paragraphs) <= 1 {
		return c.chunkSentences(text, metadata)
	}

	chunks := make([]domain.Chunk, 0)
	index := 0

	var current []string
	currentSize := 0
	currentStart := 0

	flush := func(start int) (end int) {
		joined := strings.Join(current, paragraphSeparator)
		end = start + len(joined)
		md := mergeMetadata(metadata, StrategyParagraph)
		md["paragraph_count"] = len(current)
		chunks = append(chunks, domain.Chunk{
			ID:        uuid.New(),
			Index:     index,
			Text:      joined,
			StartChar: start,
			EndChar:   end,
			Metadata:  md,
		})
		index++
		return end
	}

	for _, paragraph := range paragraphs {
		if currentSize+len(paragraph) > c.cfg.ChunkSize && len(current) > 0 {
			chunkEnd := flush(currentStart)

			if c.cfg.ChunkOverlap > 0 {
				last := current[len(current)-1]
				if len(last) <= c.cfg.ChunkOverlap {
					current = []string{last}
					currentSize = len(last)
					currentStart = chunkEnd - currentSize
				} else {
					current = nil
					currentSize = 0
					currentStart = chunkEnd
				}
			} else {
				current = nil
				currentSize = 0
				currentStart = chunkEnd
			}
		}

		current = append(current, paragraph)
		currentSize += len(paragraph) + len(paragraphSeparator)
	}

	if len(current) > 0 {
		flush(currentStart)
	}

	return chunks
}
