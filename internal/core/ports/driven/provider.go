package driven

import "context"

// ProviderClient is the capability contract for a remote model provider:
// single/batch embeddings plus single/batch completions. Implementations
// are stateless with respect to request parameters, which are passed per
// call; the owner must call Close when the client is no longer needed.
//
// Implementations bound concurrent in-flight requests with an admission
// gate shared across all callers in the process, and retry transient
// network failures with exponential backoff. Rate-limit responses are
// surfaced as domain.ErrRateLimited so callers can apply their own
// backoff policy.
type ProviderClient interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string, opts EmbedOptions) (*EmbeddingResult, error)

	// EmbedBatch generates embeddings for multiple texts, partitioning
	// the input into provider-sized requests dispatched concurrently.
	// Results are returned in input order regardless of batch completion
	// order.
	EmbedBatch(ctx context.Context, texts []string, opts EmbedOptions) ([]EmbeddingResult, error)

	// Complete generates a completion for a single prompt.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// CompleteBatch generates completions for multiple prompts
	// concurrently, preserving input order.
	CompleteBatch(ctx context.Context, reqs []CompletionRequest) ([]CompletionResult, error)

	// Close releases the underlying connections.
	Close() error
}

// EmbedOptions carries per-call embedding parameters.
type EmbedOptions struct {
	// Model is the embedding model identifier.
	Model string

	// Dimensions optionally overrides the vector size for models that
	// support variable dimensions. Zero means the model default.
	Dimensions int

	// BatchSize caps the number of inputs per provider request. Zero
	// means the provider's hard per-request limit.
	BatchSize int
}

// EmbeddingResult is one embedding with its provenance.
type EmbeddingResult struct {
	// Index is the position of the source text in the original input.
	Index int

	// Vector is the embedding.
	Vector []float32

	// Model is the full model version reported by the provider.
	Model string

	// TokensUsed is the provider-reported token usage attributed to this
	// result's request.
	TokensUsed int
}

// CompletionRequest carries per-call completion parameters.
type CompletionRequest struct {
	Model         string
	Prompt        string
	SystemMessage string
	Temperature   float64
	MaxTokens     int
}

// CompletionResult is the generated text with finish metadata.
type CompletionResult struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}
