// Package services contains the core pipeline services: the stage
// coordinator, the embedding orchestrator and the retrieval ranker.
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/core/ports/driving"
	"github.com/tutorstack/docproc/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.PipelineRunner = (*Pipeline)(nil)

// ChunkerFactory builds a text chunker for one run. Strategy, size and
// overlap of zero value fall back to the wiring's configured defaults.
// Invalid parameters fail here, before any document state changes.
type ChunkerFactory func(strategy string, chunkSize, chunkOverlap int) (driven.TextChunker, error)

// Pipeline sequences parse, chunk and embed for one document, driving
// the processing status state machine. Each stage commits its output
// before the next starts, so a later failure never rolls back earlier
// progress.
type Pipeline struct {
	store        driven.DocumentStore
	parser       driven.DocumentParser
	newChunker   ChunkerFactory
	orchestrator *Orchestrator
	queue        driven.WorkQueue
	progress     ProgressFunc
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithWorkQueue enables ProcessAsync on the given queue.
func WithWorkQueue(q driven.WorkQueue) PipelineOption {
	return func(p *Pipeline) { p.queue = q }
}

// WithProgress forwards embedding progress updates.
func WithProgress(fn ProgressFunc) PipelineOption {
	return func(p *Pipeline) { p.progress = fn }
}

// NewPipeline creates the pipeline coordinator. The orchestrator may be
// nil when no provider is configured; processing then fails before the
// embedding stage with domain.ErrProviderUnavailable.
func NewPipeline(store driven.DocumentStore, parser driven.DocumentParser, newChunker ChunkerFactory, orchestrator *Orchestrator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:        store,
		parser:       parser,
		newChunker:   newChunker,
		orchestrator: orchestrator,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full pipeline for the stored document with the given
// raw content. A failure at any stage marks the document failed with
// the stage's error and halts; a failing status update on that path is
// logged and swallowed so the original error survives.
func (p *Pipeline) Process(ctx context.Context, documentID uuid.UUID, content []byte, opts driving.ProcessOptions) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	// Build the chunker up front: configuration errors must surface
	// before the document leaves pending.
	chunker, err := p.newChunker(opts.Strategy, opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return err
	}

	// Parsing stage.
	if err := p.store.UpdateDocumentStatus(ctx, documentID, domain.StatusParsing, ""); err != nil {
		return err
	}
	logger.Info("parsing document %s (%s)", documentID, doc.Filename)

	parsed, err := p.parser.Parse(ctx, content, doc.Filename, doc.FileType)
	if err != nil {
		p.fail(ctx, documentID, err)
		return err
	}

	// Re-fetch so the merge writes over the stamped parsing state, not
	// the pending snapshot from before the transition.
	doc, err = p.store.GetDocument(ctx, documentID)
	if err != nil {
		p.fail(ctx, documentID, err)
		return err
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, len(parsed.Metadata))
	}
	for k, v := range parsed.Metadata {
		doc.Metadata[k] = v
	}
	doc.Status = domain.StatusParsing
	if err := p.store.SaveDocument(ctx, doc); err != nil {
		p.fail(ctx, documentID, err)
		return err
	}

	// Chunking stage.
	if err := p.store.UpdateDocumentStatus(ctx, documentID, domain.StatusChunking, ""); err != nil {
		p.fail(ctx, documentID, err)
		return err
	}

	chunks := chunker.Chunk(parsed.Text, map[string]any{
		"original_filename": doc.Filename,
	})
	for i := range chunks {
		chunks[i].DocumentID = documentID
	}
	if err := p.store.CreateChunks(ctx, documentID, chunks); err != nil {
		p.fail(ctx, documentID, err)
		return err
	}
	logger.Info("created %d chunks for document %s", len(chunks), documentID)

	// Embedding stage. The orchestrator owns the transitions to
	// embedding and the terminal state, including the partial-failure
	// note. An empty chunk set still runs through it so the document
	// ends completed.
	if p.orchestrator == nil {
		p.fail(ctx, documentID, domain.ErrProviderUnavailable)
		return domain.ErrProviderUnavailable
	}

	if _, err := p.orchestrator.EmbedDocumentChunks(ctx, doc, chunks, p.progress); err != nil {
		// The orchestrator already marked the document failed.
		return err
	}
	return nil
}

// ProcessAsync validates the content synchronously, then enqueues the
// pipeline run and returns the task ID.
func (p *Pipeline) ProcessAsync(ctx context.Context, documentID uuid.UUID, content []byte, opts driving.ProcessOptions) (string, error) {
	if p.queue == nil {
		return "", fmt.Errorf("no work queue configured")
	}

	// Size and format errors surface now, not in the background.
	if probe, ok := p.parser.(driven.FormatProbe); ok {
		doc, err := p.store.GetDocument(ctx, documentID)
		if err != nil {
			return "", err
		}
		if err := probe.Probe(content, doc.Filename, doc.FileType); err != nil {
			return "", err
		}
	}

	return p.queue.Enqueue(ctx, driven.TaskDocumentProcessing, func(taskCtx context.Context) error {
		return p.Process(taskCtx, documentID, content, opts)
	})
}

// Reprocess resets a document to pending and runs the pipeline again.
// The previous chunk set is replaced wholesale during the chunking
// stage.
func (p *Pipeline) Reprocess(ctx context.Context, documentID uuid.UUID, content []byte, opts driving.ProcessOptions) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	doc.ResetProcessing()
	if err := p.store.SaveDocument(ctx, doc); err != nil {
		return err
	}

	logger.Info("reprocessing document %s", documentID)
	return p.Process(ctx, documentID, content, opts)
}

// Resume embeds the chunks of a document that still lack a stored
// vector, typically after a run that completed with embedding gaps.
// The existing chunk set is kept; the document walks the lifecycle
// again but the parse and chunk stages are skipped because their
// output is already persisted.
func (p *Pipeline) Resume(ctx context.Context, documentID uuid.UUID) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	pending, err := p.store.ChunksWithoutEmbedding(ctx, documentID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("document %s has no chunks awaiting embedding", documentID)
		return nil
	}
	if p.orchestrator == nil {
		return domain.ErrProviderUnavailable
	}

	doc.ResetProcessing()
	if err := p.store.SaveDocument(ctx, doc); err != nil {
		return err
	}
	if err := p.store.UpdateDocumentStatus(ctx, documentID, domain.StatusParsing, ""); err != nil {
		return err
	}
	if err := p.store.UpdateDocumentStatus(ctx, documentID, domain.StatusChunking, ""); err != nil {
		return err
	}

	logger.Info("resuming embedding for document %s: %d chunks pending", documentID, len(pending))
	_, err = p.orchestrator.EmbedDocumentChunks(ctx, doc, pending, p.progress)
	return err
}

// fail marks the document failed, swallowing a failing status update so
// the stage error is the one reported.
func (p *Pipeline) fail(ctx context.Context, documentID uuid.UUID, cause error) {
	if err := p.store.UpdateDocumentStatus(ctx, documentID, domain.StatusFailed, cause.Error()); err != nil {
		logger.Error("could not mark document %s failed: %v", documentID, err)
	}
}
