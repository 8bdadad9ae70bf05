package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfrag/internal/domain"
)

const serviceName = "extractor"

// Client talks to the PDF extraction service.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Config configures the extraction client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	t := cfg.Timeout
	if t == 0 {
		t = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: t},
		logger:  logger,
	}
}

type extractResponse struct {
	Blocks []domain.RawBlock `json:"blocks"`
}

// Extract uploads a PDF and returns the typed blocks found in it.
func (c *Client) Extract(ctx context.Context, filename string, pdf io.Reader) ([]domain.RawBlock, error) {
	if filename == "" {
		filename = "file.pdf"
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		h.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, pdf)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, &domain.UpstreamError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Status: resp.StatusCode, Err: fmt.Errorf("decode blocks: %w", err)}
	}
	c.logger.Debug("extracted blocks",
		zap.String("filename", filename),
		zap.Int("blocks", len(out.Blocks)),
		zap.Duration("took", time.Since(start)),
	)
	return out.Blocks, nil
}

// Ping checks that the extraction service is alive.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.UpstreamError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var err error
	if msg := strings.TrimSpace(string(body)); msg != "" {
		err = errors.New(msg)
	}
	return &domain.UpstreamError{Service: serviceName, Status: resp.StatusCode, Err: err}
}
