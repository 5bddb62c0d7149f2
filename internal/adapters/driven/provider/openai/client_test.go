package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		APIKey:         "sk-test",
		BaseURL:        srv.URL,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// embeddingsHandler returns one deterministic vector per input where
// the first component encodes the input's index in the request.
func embeddingsHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{
				"embedding": []float64{float64(i), 0.5, 0.25},
				"index":     i,
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data":  data,
			"model": req.Model,
			"usage": map[string]int{"prompt_tokens": len(req.Input) * 3, "total_tokens": len(req.Input) * 3},
		})
	})
}

func TestNew_RequiresAPIKey(t *testing.T) {
	client, err := New(Config{})
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestEmbed_Single(t *testing.T) {
	client := newTestClient(t, embeddingsHandler(t))

	result, err := client.Embed(context.Background(), "hello", driven.EmbedOptions{Model: "text-embedding-3-small"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Index)
	assert.Equal(t, []float32{0, 0.5, 0.25}, result.Vector)
	assert.Equal(t, "text-embedding-3-small", result.Model)
}

func TestEmbedBatch_PartitionsAndPreservesOrder(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		// Stall the first request so the second finishes first.
		if n == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		embeddingsHandler(t).ServeHTTP(w, r)
	})
	client := newTestClient(t, handler)

	texts := []string{"a", "b", "c", "d", "e"}
	results, err := client.EmbedBatch(context.Background(), texts, driven.EmbedOptions{
		Model:     "text-embedding-3-small",
		BatchSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	// 5 inputs at batch size 2 means 3 requests.
	assert.Equal(t, int32(3), requests.Load())

	// Global index reassembly: result i carries its within-request
	// index as the first vector component.
	for i, result := range results {
		assert.Equal(t, i, result.Index)
		assert.Equal(t, float32(i%2), result.Vector[0], "result %d", i)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	client := newTestClient(t, embeddingsHandler(t))

	results, err := client.EmbedBatch(context.Background(), nil, driven.EmbedOptions{})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestEmbedBatch_RateLimitSurfacesWithoutRetry(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Rate limit reached", "type": "rate_limit_error"},
		})
	})
	client := newTestClient(t, handler)

	_, err := client.EmbedBatch(context.Background(), []string{"x"}, driven.EmbedOptions{Model: "text-embedding-3-small"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(1), requests.Load(), "429 must not be silently retried")
}

func TestEmbedBatch_NoRetryOnAuthFailure(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Incorrect API key", "type": "invalid_request_error"},
		})
	})
	client := newTestClient(t, handler)

	_, err := client.Embed(context.Background(), "x", driven.EmbedOptions{Model: "text-embedding-3-small"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRateLimited)
	assert.Contains(t, err.Error(), "Incorrect API key")
	assert.Equal(t, int32(1), requests.Load())
}

func TestEmbedBatch_RetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"error":{"message":"upstream hiccup"}}`)
			return
		}
		embeddingsHandler(t).ServeHTTP(w, r)
	})
	client := newTestClient(t, handler)

	result, err := client.Embed(context.Background(), "x", driven.EmbedOptions{Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), requests.Load())
	assert.Len(t, result.Vector, 3)
}

func TestEmbedBatch_RetriesExhausted(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"persistent failure"}}`)
	})
	client := newTestClient(t, handler)

	_, err := client.Embed(context.Background(), "x", driven.EmbedOptions{Model: "text-embedding-3-small"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	// Initial attempt plus three retries.
	assert.Equal(t, int32(4), requests.Load())
}

func TestComplete(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "The powerhouse of the cell."},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 7},
		})
	})
	client := newTestClient(t, handler)

	result, err := client.Complete(context.Background(), driven.CompletionRequest{
		Model:         "gpt-4o-mini",
		Prompt:        "What is the mitochondria?",
		SystemMessage: "You are a biology tutor.",
		MaxTokens:     100,
	})
	require.NoError(t, err)

	assert.Equal(t, "The powerhouse of the cell.", result.Content)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, 12, result.PromptTokens)
	assert.Equal(t, 7, result.CompletionTokens)
}

func TestCompleteBatch_PreservesOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Echo the prompt back so order is observable.
		prompt := req.Messages[len(req.Messages)-1].Content
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "echo: " + prompt},
				"finish_reason": "stop",
			}},
		})
	})
	client := newTestClient(t, handler)

	reqs := []driven.CompletionRequest{
		{Model: "gpt-4o-mini", Prompt: "one"},
		{Model: "gpt-4o-mini", Prompt: "two"},
		{Model: "gpt-4o-mini", Prompt: "three"},
	}
	results, err := client.CompleteBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "echo: one", results[0].Content)
	assert.Equal(t, "echo: two", results[1].Content)
	assert.Equal(t, "echo: three", results[2].Content)
}
