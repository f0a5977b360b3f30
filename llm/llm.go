// Package llm provides a shared client for OpenAI-compatible chat
// completion endpoints. It backs the best-effort enrichment steps (OCR
// correction, sentiment refinement) and the Q&A answer generation.
//
// The /v1/chat/completions format covers vLLM, Ollama, RunPod and OpenAI
// itself, so the same client works against any of them.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrDisabled is returned when no endpoint is configured. Callers treat it
// as "refinement unavailable" and fall back to heuristic output.
var ErrDisabled = errors.New("llm: no endpoint configured")

// Config configures the client.
type Config struct {
	// Endpoint is the service base URL, e.g. "https://api.openai.com".
	// Empty disables the client.
	Endpoint string
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string
	// Model is the chat model name. Default: "gpt-4o-mini".
	Model string
	// Timeout is the per-request HTTP timeout. Default: 60s.
	Timeout time.Duration
	// MaxRetryElapsed bounds the retry-with-backoff window for transient
	// failures. Default: 30s.
	MaxRetryElapsed time.Duration
	// Logger for debug/error messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetryElapsed <= 0 {
		c.MaxRetryElapsed = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client calls a chat completion endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	cfg      Config
}

// New creates a Client. A nil-equivalent client (no endpoint) is valid:
// every call returns ErrDisabled.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a system+user prompt pair and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return c.call(ctx, system, user, maxTokens, nil)
}

// CompleteJSON requests a JSON-object response and unmarshals it into out.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, maxTokens int, out any) error {
	text, err := c.call(ctx, system, user, maxTokens, &respFormat{Type: "json_object"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("llm: malformed JSON response: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, system, user string, maxTokens int, format *respFormat) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:      maxTokens,
		Temperature:    0.1,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	url := c.endpoint + "/v1/chat/completions"

	var result chatResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP POST %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
		}
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody)))
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.MaxRetryElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned from %s", url)
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
