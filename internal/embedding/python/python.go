package python

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
)

const serviceName = "embedding/python"

// DefaultDimension matches intfloat/e5-base-v2.
const DefaultDimension = 768

// Client embeds texts through the extraction service's /embed endpoint.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	baseURL   string
	dimension int
	client    *http.Client
}

// Config configures the /embed client.
type Config struct {
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

func NewClient(cfg Config) *Client {
	t := cfg.Timeout
	if t == 0 {
		t = 2 * time.Minute
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: t},
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "python" }

// Dimension returns the configured vector size.
func (c *Client) Dimension() int { return c.dimension }

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
}

// Embed sends all texts in one request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.UpstreamError{Service: serviceName, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Status: resp.StatusCode, Err: fmt.Errorf("decode embeddings: %w", err)}
	}
	if err := embedding.Validate(texts, out.Embeddings); err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Status: resp.StatusCode, Err: err}
	}
	for i, v := range out.Embeddings {
		if len(v) != c.dimension {
			return nil, &domain.UpstreamError{
				Service: serviceName,
				Status:  resp.StatusCode,
				Err:     fmt.Errorf("%w: vector %d of %s has %d dimensions, want %d", domain.ErrEmbeddingMismatch, i, out.Model, len(v), c.dimension),
			}
		}
	}
	return out.Embeddings, nil
}
