package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/logger"
)

// DefaultBatchSize is the number of chunks embedded per provider call.
const DefaultBatchSize = 100

// maxBackoff caps the sleep after a rate-limited batch.
const maxBackoff = 60 * time.Second

// validDimensions is the fixed table of model to allowed vector sizes.
// Unknown models pass through unvalidated.
var validDimensions = map[string][]int{
	"text-embedding-3-small": {512, 1536},
	"text-embedding-3-large": {256, 1024, 3072},
	"text-embedding-ada-002": {1536},
}

// EmbedSummary reports the outcome of one embedding run.
type EmbedSummary struct {
	TotalChunks     int
	ProcessedChunks int
	FailedChunks    int
	FailedChunkIDs  []uuid.UUID
	TokensUsed      int
	Model           string
	Dimensions      int
	Success         bool
}

// ProgressFunc receives embedding progress updates.
type ProgressFunc func(processed, total int, message string)

// Orchestrator generates and stores embeddings for document chunks.
// Chunks are processed in sequential batches; a failed batch is
// recorded and skipped rather than aborting the run, so one bad batch
// cannot sink a large document.
type Orchestrator struct {
	store      driven.DocumentStore
	provider   driven.ProviderClient
	model      string
	dimensions int
	batchSize  int
	sleep      func(time.Duration)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBatchSize overrides the default batch size.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithSleep replaces the backoff sleep. Tests inject a recorder here.
func WithSleep(fn func(time.Duration)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

// NewOrchestrator creates an embedding orchestrator, validating the
// model/dimension pairing against the known-model table before any
// traffic is sent.
func NewOrchestrator(store driven.DocumentStore, provider driven.ProviderClient, model string, dimensions int, opts ...OrchestratorOption) (*Orchestrator, error) {
	if allowed, known := validDimensions[model]; known {
		ok := false
		for _, d := range allowed {
			if d == dimensions {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: model %q does not support %d dimensions (valid: %v)",
				domain.ErrInvalidConfig, model, dimensions, allowed)
		}
	}

	o := &Orchestrator{
		store:      store,
		provider:   provider,
		model:      model,
		dimensions: dimensions,
		batchSize:  DefaultBatchSize,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Model returns the configured embedding model.
func (o *Orchestrator) Model() string { return o.model }

// Dimensions returns the configured vector size.
func (o *Orchestrator) Dimensions() int { return o.dimensions }

// EmbedQuery embeds a single query text with the service's model.
func (o *Orchestrator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	result, err := o.provider.Embed(ctx, text, driven.EmbedOptions{
		Model:      o.model,
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, err
	}
	return result.Vector, nil
}

// EmbedDocumentChunks embeds all chunks of a document in batches,
// upserting each vector as it arrives. Rate-limited batches are
// recorded as failed and followed by an exponential backoff capped at
// 60 seconds; other batch errors are recorded and skipped. Partial
// failure still ends in completed status with an error note. Only a
// whole-run failure (status bookkeeping, cancelled context) marks the
// document failed and returns a *domain.EmbeddingError.
func (o *Orchestrator) EmbedDocumentChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, progress ProgressFunc) (*EmbedSummary, error) {
	summary := &EmbedSummary{
		TotalChunks: len(chunks),
		Model:       o.model,
		Dimensions:  o.dimensions,
	}

	logger.Info("embedding %d chunks of document %s", len(chunks), doc.ID)

	if err := o.store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusEmbedding, ""); err != nil {
		return nil, o.fail(ctx, doc, err)
	}

	for start := 0; start < len(chunks); start += o.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, o.fail(ctx, doc, err)
		}

		end := start + o.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		batchIndex := start / o.batchSize

		if err := o.embedBatch(ctx, batch, summary); err != nil {
			for _, chunk := range batch {
				summary.FailedChunkIDs = append(summary.FailedChunkIDs, chunk.ID)
			}

			if errors.Is(err, domain.ErrRateLimited) {
				wait := backoff(batchIndex)
				logger.Warn("rate limited on batch %d, waiting %v", batchIndex+1, wait)
				o.sleep(wait)
			} else {
				logger.Error("batch %d failed: %v", batchIndex+1, err)
			}
			continue
		}

		summary.ProcessedChunks += len(batch)
		if progress != nil {
			progress(summary.ProcessedChunks, summary.TotalChunks,
				fmt.Sprintf("Embedded %d/%d chunks", summary.ProcessedChunks, summary.TotalChunks))
		}
	}

	summary.FailedChunks = len(summary.FailedChunkIDs)
	summary.Success = summary.FailedChunks == 0

	errNote := ""
	if summary.FailedChunks > 0 {
		errNote = fmt.Sprintf("Failed to embed %d chunks", summary.FailedChunks)
	}
	if err := o.store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusCompleted, errNote); err != nil {
		return nil, o.fail(ctx, doc, err)
	}

	logger.Info("embedding completed for document %s: %d/%d chunks",
		doc.ID, summary.ProcessedChunks, summary.TotalChunks)
	return summary, nil
}

// embedBatch embeds one batch and upserts the resulting vectors.
func (o *Orchestrator) embedBatch(ctx context.Context, batch []domain.Chunk, summary *EmbedSummary) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	results, err := o.provider.EmbedBatch(ctx, texts, driven.EmbedOptions{
		Model:      o.model,
		Dimensions: o.dimensions,
	})
	if err != nil {
		return err
	}
	if len(results) != len(batch) {
		return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(results))
	}

	for i, result := range results {
		emb := domain.Embedding{
			ChunkID:      batch[i].ID,
			Vector:       result.Vector,
			ModelName:    o.model,
			ModelVersion: result.Model,
			Dimensions:   len(result.Vector),
		}
		if err := o.store.UpsertEmbedding(ctx, emb); err != nil {
			return fmt.Errorf("store embedding for chunk %s: %w", batch[i].ID, err)
		}
		summary.TokensUsed += result.TokensUsed
	}
	return nil
}

// fail marks the document failed and wraps the cause. A failing status
// update on this path is logged and swallowed so the original cause
// survives.
func (o *Orchestrator) fail(ctx context.Context, doc *domain.Document, cause error) error {
	if err := o.store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusFailed, cause.Error()); err != nil {
		logger.Error("could not mark document %s failed: %v", doc.ID, err)
	}
	return &domain.EmbeddingError{DocumentID: doc.ID, Err: cause}
}

// backoff returns the rate-limit wait for the given batch position:
// 2^i seconds capped at maxBackoff.
func backoff(batchIndex int) time.Duration {
	if batchIndex > 5 {
		return maxBackoff
	}
	d := time.Duration(1<<batchIndex) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
