// Package chunkers splits extracted text into overlapping chunks sized
// for embedding. Three strategies are available: fixed_size windows,
// sentence grouping and paragraph grouping. Strategy parameters are
// validated when the chunker is constructed, never mid-run.
package chunkers

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/logger"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Strategy names.
const (
	StrategyFixedSize = "fixed_size"
	StrategySentence  = "sentence"
	StrategyParagraph = "paragraph"
)

// tokenEncoding is the BPE encoding used for per-chunk token counts.
// cl100k_base covers the text-embedding-3 model family.
const tokenEncoding = "cl100k_base"

// Config holds chunking parameters. Zero-value size/overlap fall back
// to the package defaults.
type Config struct {
	Strategy     string
	ChunkSize    int
	ChunkOverlap int

	// DisableWordBoundaries turns off the fixed_size strategy's
	// boundary snapping. Mainly useful in tests that assert exact
	// window arithmetic.
	DisableWordBoundaries bool
}

// Ensure Chunker implements the interface.
var _ driven.TextChunker = (*Chunker)(nil)

// Chunker dispatches to the configured strategy.
type Chunker struct {
	cfg Config

	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
}

// New creates a chunker, validating the configuration. Overlap must be
// non-negative and strictly smaller than the chunk size.
func New(cfg Config) (*Chunker, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyFixedSize
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	switch cfg.Strategy {
	case StrategyFixedSize, StrategySentence, StrategyParagraph:
	default:
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", domain.ErrInvalidConfig, cfg.Strategy)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", domain.ErrInvalidConfig)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap cannot be negative", domain.ErrInvalidConfig)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			domain.ErrInvalidConfig, cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return &Chunker{cfg: cfg}, nil
}

// Chunk splits text using the configured strategy. Indices are 0-based
// and gapless; the metadata map is merged into every produced chunk.
// An empty input yields an empty slice.
func (c *Chunker) Chunk(text string, metadata map[string]any) []domain.Chunk {
	var chunks []domain.Chunk
	switch c.cfg.Strategy {
	case StrategySentence:
		chunks = c.chunkSentences(text, metadata)
	case StrategyParagraph:
		chunks = c.chunkParagraphs(text, metadata)
	default:
		chunks = c.chunkFixed(text, metadata)
	}

	c.countTokens(chunks)
	logger.Debug("chunked %d chars into %d chunks (%s)", len(text), len(chunks), c.cfg.Strategy)
	return chunks
}

// EstimateChunks predicts how many chunks a text of the given length
// will produce under the fixed-size window arithmetic. Useful for
// progress reporting before chunking runs.
func EstimateChunks(textLength, chunkSize, chunkOverlap int) int {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if textLength <= chunkSize {
		return 1
	}

	stride := chunkSize - chunkOverlap
	if stride <= 0 {
		stride = chunkSize
	}
	return (textLength-chunkOverlap)/stride + 1
}

// countTokens records a tiktoken count per chunk. Token counts are
// best-effort: if the encoding cannot be loaded the chunks simply
// carry no count.
func (c *Chunker) countTokens(chunks []domain.Chunk) {
	c.tokenizerOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			logger.Warn("token encoding %s unavailable: %v", tokenEncoding, err)
			return
		}
		c.tokenizer = enc
	})
	if c.tokenizer == nil {
		return
	}

	for i := range chunks {
		chunks[i].Metadata["token_count"] = len(c.tokenizer.Encode(chunks[i].Text, nil, nil))
	}
}

// mergeMetadata copies the shared metadata and appends the strategy key.
func mergeMetadata(shared map[string]any, strategy string) map[string]any {
	merged := make(map[string]any, len(shared)+2)
	for k, v := range shared {
		merged[k] = v
	}
	merged["strategy"] = strategy
	return merged
}
