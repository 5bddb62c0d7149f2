package chunkers

import (
	"strings"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
)

// chunkFixed slides a window of ChunkSize over the normalized text,
// advancing by ChunkSize - ChunkOverlap each step. When word boundary
// respect is on and the window's right edge falls mid-word, the edge
// snaps back to the last space provided it sits within the final 20%
// of the window. Empty windows are dropped and indices reassigned over
// kept windows.
func (c *Chunker) chunkFixed(text string, metadata map[string]any) []domain.Chunk {
	text = normalize(text)
	if text == "" {
		return []domain.Chunk{}
	}

	stride := c.cfg.ChunkSize - c.cfg.ChunkOverlap
	if stride <= 0 {
		stride = c.cfg.ChunkSize
	}

	chunks := make([]domain.Chunk, 0, EstimateChunks(len(text), c.cfg.ChunkSize, c.cfg.ChunkOverlap))
	pos := 0
	index := 0

	for pos < len(text) {
		start := pos
		end := start + c.cfg.ChunkSize
		if end > len(text) {
			end = len(text)
		}

		if !c.cfg.DisableWordBoundaries && end < len(text) {
			spacePos := strings.LastIndexByte(text[start:end], ' ')
			if spacePos >= 0 {
				spacePos += start
				// Snap only when the space sits in the last 20% of
				// the window; otherwise keep the hard cut.
				if float64(spacePos) > float64(start)+float64(c.cfg.ChunkSize)*0.8 {
					end = spacePos
				}
			}
		}

		chunkText := strings.TrimSpace(text[start:end])
		if chunkText != "" {
			chunks = append(chunks, domain.Chunk{
				ID:        uuid.New(),
				Index:     index,
				Text:      chunkText,
				StartChar: start,
				EndChar:   end,
				Metadata:  mergeMetadata(metadata, StrategyFixedSize),
			})
			index++
		}

		if end >= len(text) {
			break
		}
		pos += stride
	}

	return chunks
}
