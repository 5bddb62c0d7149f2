package chunkers

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
)

// shortFragmentThreshold guards against abbreviation false-splits:
// fragments shorter than this merge into the previous sentence.
const shortFragmentThreshold = 20

// sentenceBoundary matches sentence-ending punctuation followed by
// whitespace and an uppercase letter. RE2 has no lookbehind, so the
// pattern consumes the punctuation and the uppercase letter; splitting
// uses the submatch indices to cut after the punctuation and resume at
// the letter.
var sentenceBoundary = regexp.MustCompile(`([.!?])(\s+)([A-Z])`)

// chunkSentences accumulates sentences into a chunk until adding the
// next one would exceed ChunkSize, then closes the chunk and seeds the
// next with trailing sentences whose cumulative length covers the
// overlap. Falls back to fixed-size chunking when the text has no
// sentence boundaries.
func (c *Chunker) chunkSentences(text string, metadata map[string]any) []domain.Chunk {
	text = normalize(text)
	if text == "" {
		return []domain.Chunk{}
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return c.chunkFixed(text, metadata)
	}

	chunks := make([]domain.Chunk, 0)
	index := 0

	var current []string
	currentSize := 0
	currentStart := 0

	flush := func(start int) (end int) {
		joined := strings.Join(current, " ")
		end = start + len(joined)
		md := mergeMetadata(metadata, StrategySentence)
		md["sentence_count"] = len(current)
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

	for _, sentence := range sentences {
		if currentSize+len(sentence) > c.cfg.ChunkSize && len(current) > 0 {
			chunkEnd := flush(currentStart)

			if c.cfg.ChunkOverlap > 0 {
				// Seed the next chunk with trailing sentences covering
				// the overlap.
				overlapSize := 0
				var overlap []string
				for i := len(current) - 1; i >= 0; i-- {
					overlapSize += len(current[i])
					overlap = append([]string{current[i]}, overlap...)
					if overlapSize >= c.cfg.ChunkOverlap {
						break
					}
				}
				current = overlap
				currentSize = overlapSize
				currentStart = chunkEnd - currentSize
			} else {
				current = nil
				currentSize = 0
				currentStart = chunkEnd
			}
		}

		current = append(current, sentence)
		currentSize += len(sentence)
	}

	if len(current) > 0 {
		flush(currentStart)
	}

	return chunks
}

// splitSentences cuts text at sentence boundaries and merges fragments
// shorter than shortFragmentThreshold into their predecessor.
func splitSentences(text string) []string {
	matches := sentenceBoundary.FindAllStringSubmatchIndex(text, -1)

	var parts []string
	prev := 0
	for _, m := range matches {
		// m[3] is the end of the punctuation group, m[6] the start of
		// the uppercase letter opening the next sentence.
		parts = append(parts, text[prev:m[3]])
		prev = m[6]
	}
	parts = append(parts, text[prev:])

	var sentences []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sentences = append(sentences, p)
		}
	}

	// Merge short fragments into the previous sentence.
	var merged []string
	buffer := ""
	for _, sentence := range sentences {
		if len(sentence) < shortFragmentThreshold && buffer != "" {
			buffer += " " + sentence
		} else {
			if buffer != "" {
				merged = append(merged, buffer)
			}
			buffer = sentence
		}
	}
	if buffer != "" {
		merged = append(merged, buffer)
	}

	return merged
}
