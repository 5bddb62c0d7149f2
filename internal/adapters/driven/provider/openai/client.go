// Package openai provides a provider client adapter for the OpenAI API:
// embeddings and chat completions behind the ProviderClient port.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/logger"
)

// Ensure Client implements the interface.
var _ driven.ProviderClient = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "text-embedding-3-small"
	DefaultTimeout        = 60 * time.Second
	DefaultMaxConcurrency = 4
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// maxInputsPerRequest is the OpenAI hard limit on embedding inputs in
// one request.
const maxInputsPerRequest = 2048

// Config holds configuration for the OpenAI client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration

	// MaxConcurrency caps in-flight requests across all callers sharing
	// this client (default: 4).
	MaxConcurrency int

	// RequestsPerMinute throttles outgoing requests. Zero disables the
	// limiter.
	RequestsPerMinute int

	// MaxRetries is the retry budget for transient failures
	// (default: 3). Rate-limit responses are never retried here; they
	// surface as domain.ErrRateLimited for the caller's backoff policy.
	MaxRetries int

	// RetryBaseDelay is the first retry delay, doubled per attempt.
	RetryBaseDelay time.Duration
}

// Client calls the OpenAI API. All request parameters are per call;
// the client holds only transport-level state.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	gate       *semaphore.Weighted
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// New creates an OpenAI client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.MaxConcurrency)
	}

	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		gate:       semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
	}, nil
}

// embeddingRequest is the OpenAI embeddings request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI embeddings response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string, opts driven.EmbedOptions) (*driven.EmbeddingResult, error) {
	results, err := c.EmbedBatch(ctx, []string{text}, opts)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return &results[0], nil
}

// EmbedBatch generates embeddings for texts, partitioning the input
// into provider-sized requests dispatched concurrently under the
// admission gate. Results come back in input order regardless of which
// request finishes first.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, opts driven.EmbedOptions) ([]driven.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > maxInputsPerRequest {
		batchSize = maxInputsPerRequest
	}

	results := make([]driven.EmbeddingResult, len(texts))
	g, ctx := errgroup.WithContext(ctx)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		offset, batch := start, texts[start:end]

		g.Go(func() error {
			resp, err := c.embedRequest(ctx, batch, model, opts.Dimensions)
			if err != nil {
				return err
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("openai: expected %d embeddings, got %d", len(batch), len(resp.Data))
			}
			for _, item := range resp.Data {
				vec := make([]float32, len(item.Embedding))
				for i, v := range item.Embedding {
					vec[i] = float32(v)
				}
				results[offset+item.Index] = driven.EmbeddingResult{
					Index:      offset + item.Index,
					Vector:     vec,
					Model:      resp.Model,
					TokensUsed: resp.Usage.TotalTokens / len(batch),
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// embedRequest performs one embeddings call under the admission gate.
func (c *Client) embedRequest(ctx context.Context, batch []string, model string, dimensions int) (*embeddingResponse, error) {
	body := embeddingRequest{Model: model, Input: batch}
	// Only text-embedding-3-* models accept a dimensions override.
	if dimensions > 0 && (model == "text-embedding-3-small" || model == "text-embedding-3-large") {
		body.Dimensions = dimensions
	}

	var resp embeddingResponse
	if err := c.do(ctx, "/embeddings", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// chatRequest is the OpenAI chat completions request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI chat completions response format.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete generates a completion for a single prompt.
func (c *Client) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.CompletionResult, error) {
	var messages []chatMessage
	if req.SystemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemMessage})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp chatResponse
	if err := c.do(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no completion choices returned")
	}

	return &driven.CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		FinishReason:     resp.Choices[0].FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// CompleteBatch generates completions concurrently, preserving input
// order.
func (c *Client) CompleteBatch(ctx context.Context, reqs []driven.CompletionRequest) ([]driven.CompletionResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	results := make([]driven.CompletionResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			result, err := c.Complete(ctx, req)
			if err != nil {
				return err
			}
			results[i] = *result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// apiError is the OpenAI error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// do posts the request under the admission gate, retrying transient
// failures with exponential backoff. HTTP 429 surfaces immediately as
// domain.ErrRateLimited; other 4xx responses fail without retry.
func (c *Client) do(ctx context.Context, path string, reqBody, respBody any) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.gate.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			logger.Debug("openai: retrying %s after %v (attempt %d/%d)", path, delay, attempt, c.maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		retryable, err := c.doOnce(ctx, path, payload, respBody)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}

	return fmt.Errorf("openai: retries exhausted: %w", lastErr)
}

// doOnce performs a single HTTP round trip. The bool reports whether
// the failure is transient and worth retrying.
func (c *Client) doOnce(ctx context.Context, path string, payload []byte, respBody any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		// Connection resets, timeouts and truncated responses are
		// transient.
		return true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, respBody); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return false, fmt.Errorf("%w: %s", domain.ErrRateLimited, apiMessage(body))

	case resp.StatusCode >= 500:
		return true, fmt.Errorf("openai: server error (status %d): %s", resp.StatusCode, apiMessage(body))

	default:
		return false, fmt.Errorf("openai: request failed (status %d): %s", resp.StatusCode, apiMessage(body))
	}
}

func apiMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return string(body)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
