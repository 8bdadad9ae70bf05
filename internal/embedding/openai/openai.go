package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
)

const serviceName = "embedding/openai"

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	api       *goopenai.Client
	model     goopenai.EmbeddingModel
	dimension int
	batchSize int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing OpenAI API key")
	}
	if cfg.Model == "" {
		cfg.Model = string(goopenai.LargeEmbedding3)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: t}
	return &Client{
		api:       goopenai.NewClientWithConfig(oc),
		model:     goopenai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns one vector per text, in input order. Inputs above the batch
// size are sent as consecutive requests.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += c.batchSize {
		hi := min(lo+c.batchSize, len(texts))
		batch, err := c.embedBatch(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	if err := embedding.Validate(texts, out); err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Err: err}
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, upstream(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &domain.UpstreamError{
			Service: serviceName,
			Err:     fmt.Errorf("%w: %d texts, %d embeddings", domain.ErrEmbeddingMismatch, len(texts), len(resp.Data)),
		}
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) || vecs[d.Index] != nil {
			return nil, &domain.UpstreamError{Service: serviceName, Err: fmt.Errorf("%w: bad index %d", domain.ErrEmbeddingMismatch, d.Index)}
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// upstream converts go-openai errors into domain.UpstreamError, keeping the
// HTTP status when the API reported one.
func upstream(err error) error {
	ue := &domain.UpstreamError{Service: serviceName, Err: err}
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		ue.Status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		ue.Status = reqErr.HTTPStatusCode
	}
	return ue
}
