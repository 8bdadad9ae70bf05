package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdfrag/internal/service"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Code    int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server returned %d: %s (upstream %d)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the pdfrag HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// UploadFile sends the PDF at path for indexing.
func (c *Client) UploadFile(ctx context.Context, path string) (service.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return service.IngestResult{}, err
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

func (c *Client) Upload(ctx context.Context, filename string, pdf io.Reader) (service.IngestResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return service.IngestResult{}, err
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return service.IngestResult{}, err
	}
	if err := mw.Close(); err != nil {
		return service.IngestResult{}, err
	}

	var out service.IngestResult
	err = c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), &body, &out)
	return out, err
}

func (c *Client) Query(ctx context.Context, question string) (service.QueryResult, error) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return service.QueryResult{}, err
	}
	var out service.QueryResult
	err = c.do(ctx, http.MethodPost, "/api/query", "application/json", bytes.NewReader(payload), &out)
	return out, err
}

// Health returns nil when the server, and with deep set its extractor, is up.
func (c *Client) Health(ctx context.Context, deep bool) error {
	path := "/health"
	if deep {
		path += "?deep=1"
	}
	return c.do(ctx, http.MethodGet, path, "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
			Code  int    `json:"code"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Code: e.Code}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
