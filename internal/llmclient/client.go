// Package llmclient talks to the upstream language-model provider over its
// two HTTP contracts: chat-completion (used by the query classifier) and
// embedding generation (used by the vector store). The provider itself is
// external and out of scope; this package only implements the client side
// of the two envelopes it is expected to expose.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kubilitics/hqee/internal/retry"
)

const defaultTimeout = 30 * time.Second

// Message mirrors the role/content pairs most chat-completion APIs expect.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the HTTP client for the upstream chat-completion and embedding
// endpoints.
type Client struct {
	httpClient   *http.Client
	chatURL      string
	embeddingURL string
	accessKey    string
	model        string
	modelVersion string
	retryPolicy  retry.Policy
}

// Config carries the subset of the LLM configuration section the client needs.
type Config struct {
	ChatCompletionURL string
	EmbeddingURL      string
	AccessKey         string
	Model             string
	ModelVersion      string
}

// New builds a Client against the given endpoints.
func New(cfg Config) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		chatURL:      cfg.ChatCompletionURL,
		embeddingURL: cfg.EmbeddingURL,
		accessKey:    cfg.AccessKey,
		model:        cfg.Model,
		modelVersion: cfg.ModelVersion,
		retryPolicy:  retry.DefaultPolicy(),
	}
}

type chatRequest struct {
	Prompt       string    `json:"prompt,omitempty"`
	Messages     []Message `json:"messages,omitempty"`
	Model        string    `json:"model"`
	ModelVersion string    `json:"modelVersion"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"maxTokens"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

type chatData struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Model   string       `json:"model"`
	Version string       `json:"version"`
}

type chatEnvelope struct {
	Result bool     `json:"result"`
	Data   chatData `json:"data"`
	Error  string   `json:"error"`
}

// Complete sends a single-turn classification prompt and returns the raw
// completion text (the classifier parses the "CATEGORY|confidence|tools"
// line out of it). Deterministic parameters are the caller's responsibility:
// the classifier passes a low temperature and a small token budget.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	req := chatRequest{
		Prompt:       prompt,
		Model:        c.model,
		ModelVersion: c.modelVersion,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	}

	env, err := retry.DoValue(ctx, c.retryPolicy, isRetryableHTTPError, func() (chatEnvelope, error) {
		return c.doChat(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: chat completion request failed: %w", err)
	}
	if !env.Result {
		return "", fmt.Errorf("llmclient: chat completion provider error: %s", env.Error)
	}
	if len(env.Data.Choices) == 0 {
		return "", fmt.Errorf("llmclient: chat completion returned no choices")
	}
	return env.Data.Choices[0].Message.Content, nil
}

func (c *Client) doChat(ctx context.Context, req chatRequest) (chatEnvelope, error) {
	var env chatEnvelope

	body, err := json.Marshal(req)
	if err != nil {
		return env, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return env, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.accessKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.accessKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return env, &httpError{transient: true, err: fmt.Errorf("chat completion http call: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, fmt.Errorf("read chat response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return env, &httpError{
			transient: isRetryableStatus(resp.StatusCode),
			err:       fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	if err := json.Unmarshal(respBody, &env); err != nil {
		return env, fmt.Errorf("unmarshal chat response: %w", err)
	}
	return env, nil
}

type embeddingRequest struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	ModelVersion string `json:"modelVersion"`
	AccessKey    string `json:"access_key"`
}

// embeddingEnvelope accepts either of the two documented response shapes:
// a flat data array of floats, or data[0].embedding as an array of floats.
type embeddingEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type embeddingObject struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding vector for text. On transient HTTP failure it
// retries with exponential backoff up to retry.DefaultPolicy's 3 attempts; the
// caller is responsible for recording a failure and updating the
// continuous-failure counter on final error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embeddingRequest{
		Text:         text,
		Model:        c.model,
		ModelVersion: c.modelVersion,
		AccessKey:    c.accessKey,
	}

	vec, err := retry.DoValue(ctx, c.retryPolicy, isRetryableHTTPError, func() ([]float32, error) {
		return c.doEmbed(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: embedding request failed: %w", err)
	}
	return vec, nil
}

func (c *Client) doEmbed(ctx context.Context, req embeddingRequest) ([]float32, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.embeddingURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &httpError{transient: true, err: fmt.Errorf("embedding http call: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &httpError{
			transient: isRetryableStatus(resp.StatusCode),
			err:       fmt.Errorf("embedding endpoint returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var env embeddingEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("unmarshal embedding response: %w", err)
	}

	vec, err := parseEmbeddingData(env.Data)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("llmclient: embedding response contained an empty vector")
	}
	return vec, nil
}

// parseEmbeddingData accepts data:[f,f,...] or data:[{embedding:[f,f,...]}].
func parseEmbeddingData(raw json.RawMessage) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var objects []embeddingObject
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("llmclient: unrecognized embedding response shape: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("llmclient: embedding response data array was empty")
	}
	return objects[0].Embedding, nil
}

// httpError wraps an HTTP-layer failure with whether it is worth retrying.
type httpError struct {
	transient bool
	err       error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func isRetryableHTTPError(err error) bool {
	if err == nil {
		return false
	}
	var he *httpError
	if ok := asHTTPError(err, &he); ok {
		return he.transient
	}
	return true
}

func asHTTPError(err error, target **httpError) bool {
	he, ok := err.(*httpError)
	if ok {
		*target = he
	}
	return ok
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
