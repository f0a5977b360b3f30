// Package speech provides the audio transcription capability used during
// insight enrichment. The client targets OpenAI-compatible
// /v1/audio/transcriptions endpoints (Whisper API format).
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled is returned when no endpoint is configured.
var ErrDisabled = errors.New("speech: no endpoint configured")

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Config configures the Whisper-format client.
type Config struct {
	// Endpoint is the service base URL. Empty disables the client.
	Endpoint string
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string
	// Model is the transcription model name. Default: "whisper-1".
	Model string
	// Timeout is the per-request HTTP timeout. Default: 120s — audio
	// uploads are slow on field connections.
	Timeout time.Duration
	// Logger for debug/error messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "whisper-1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client implements Transcriber against a Whisper-format HTTP API.
type Client struct {
	endpoint string
	client   *http.Client
	cfg      Config
}

// New creates a Client.
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

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio and returns the transcribed text. The language
// hint ("it", "en", ...) steers the model; empty means auto-detect.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio.mp3")
	if err != nil {
		return "", fmt.Errorf("speech: multipart: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("speech: multipart write: %w", err)
	}
	w.WriteField("model", c.cfg.Model)
	if language != "" {
		w.WriteField("language", language)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("speech: multipart close: %w", err)
	}

	url := c.endpoint + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("speech: new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech: HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("speech: HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("speech: decode response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	c.cfg.Logger.Debug("transcription complete", "chars", len(text))
	return text, nil
}
