// Package ocr provides the image text-extraction capability used during
// insight enrichment: an HTTP client for a vision OCR service, plus an
// optional AI-assisted refinement step that corrects recognition errors.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled is returned when no endpoint is configured.
var ErrDisabled = errors.New("ocr: no endpoint configured")

// MinRefineLen is the minimum extracted-text length worth sending through
// AI refinement. Shorter fragments are kept as-is.
const MinRefineLen = 10

// Extractor extracts text from an image.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte, languages []string) (string, error)
}

// Config configures the OCR service client.
type Config struct {
	// Endpoint is the OCR service base URL. Empty disables the client.
	Endpoint string
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string
	// Timeout is the per-request HTTP timeout. Default: 60s.
	Timeout time.Duration
	// Logger for debug/error messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client implements Extractor against an HTTP OCR service.
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

type extractRequest struct {
	ImageBase64 string   `json:"image_base64"`
	Format      string   `json:"format"`
	Languages   []string `json:"languages,omitempty"`
}

type extractResponse struct {
	Text string `json:"text"`
}

// ExtractText submits an image and returns the recognised text.
// The image format is sniffed from the magic bytes (jpeg vs png).
func (c *Client) ExtractText(ctx context.Context, image []byte, languages []string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	body, err := json.Marshal(extractRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Format:      sniffFormat(image),
		Languages:   languages,
	})
	if err != nil {
		return "", fmt.Errorf("ocr: marshal request: %w", err)
	}

	url := c.endpoint + "/v1/ocr"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ocr: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ocr: HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	var result extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ocr: decode response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	c.cfg.Logger.Debug("ocr extraction complete", "chars", len(text))
	return text, nil
}

func sniffFormat(image []byte) string {
	if len(image) >= 3 && image[0] == 0xFF && image[1] == 0xD8 && image[2] == 0xFF {
		return "jpeg"
	}
	return "png"
}
