package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
	"pdfrag/internal/service"
)

type fakeService struct {
	ingestReq  service.IngestRequest
	ingestBody []byte
	ingestErr  error
	question   string
	queryRes   service.QueryResult
	queryErr   error
	panicMsg   string
}

func (f *fakeService) Ingest(_ context.Context, req service.IngestRequest) (service.IngestResult, error) {
	f.ingestReq = req
	f.ingestBody, _ = io.ReadAll(req.Body)
	if f.ingestErr != nil {
		return service.IngestResult{}, f.ingestErr
	}
	return service.IngestResult{Indexed: 4, Source: "paper", Summary: "short"}, nil
}

func (f *fakeService) Query(_ context.Context, question string) (service.QueryResult, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.question = question
	return f.queryRes, f.queryErr
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// minimalPDF builds a one-page document with a valid cross-reference table.
func minimalPDF() []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func uploadRequest(t *testing.T, path, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="paper.pdf"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestServer(svc *fakeService, opts Options) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	return NewServer(svc, fakePinger{}, opts, metrics.New(reg), nil), reg
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestUpload_OK(t *testing.T) {
	for _, path := range []string{"/upload", "/api/upload"} {
		svc := &fakeService{}
		srv, _ := newTestServer(svc, Options{})
		pdf := minimalPDF()

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, uploadRequest(t, path, "application/pdf", pdf))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, float64(4), body["indexed"])
		assert.Equal(t, "paper", body["source"])
		assert.Equal(t, "paper.pdf", svc.ingestReq.Filename)
		assert.Equal(t, pdf, svc.ingestBody)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	}
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	srv, _ := newTestServer(&fakeService{}, Options{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/upload", "text/plain", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please upload a PDF file", decode(t, rec)["error"])

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/upload", "application/pdf", []byte("definitely not a pdf")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please upload a PDF file", decode(t, rec)["error"])

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	srv, _ := newTestServer(&fakeService{}, Options{MaxUploadBytes: 64})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/upload", "application/pdf", bytes.Repeat([]byte("x"), 4096)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large", decode(t, rec)["error"])
}

func TestUpload_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   map[string]any
	}{
		{"empty", domain.ErrEmptyContent, http.StatusBadRequest, map[string]any{"error": "No content extracted"}},
		{"upstream", &domain.UpstreamError{Service: "extractor", Status: 503}, http.StatusBadGateway,
			map[string]any{"error": "Upstream extractor failed", "code": float64(503)}},
		{"internal", errors.New("boom at /secret/path"), http.StatusInternalServerError, map[string]any{"error": "Internal error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(&fakeService{ingestErr: tt.err}, Options{})
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, uploadRequest(t, "/upload", "application/pdf", minimalPDF()))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, decode(t, rec))
		})
	}
}

func TestQuery(t *testing.T) {
	d := 0.25
	svc := &fakeService{queryRes: service.QueryResult{
		Answer:    "X is Y [DOC 1]",
		Citations: []domain.Citation{{Doc: 1, Metadata: domain.ChunkMetadata{Source: "paper", Type: domain.ChunkText}, Distance: &d}},
	}}
	srv, _ := newTestServer(svc, Options{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":"What is X?"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "X is Y [DOC 1]", body["answer"])
	cites := body["citations"].([]any)
	require.Len(t, cites, 1)
	assert.Equal(t, 0.25, cites[0].(map[string]any)["distance"])
	assert.Equal(t, "What is X?", svc.question)
}

func TestQuery_EmptyCitationsIsArray(t *testing.T) {
	srv, _ := newTestServer(&fakeService{queryRes: service.QueryResult{Answer: "I don't know"}}, Options{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"citations":[]`)
}

func TestQuery_Invalid(t *testing.T) {
	srv, _ := newTestServer(&fakeService{}, Options{})
	for _, body := range []string{`{"question":"   "}`, `not json`, `{}`} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		out := decode(t, rec)
		assert.Equal(t, "Invalid body", out["error"])
		assert.NotEmpty(t, out["details"])
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(&fakeService{}, Options{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	down := NewServer(&fakeService{}, fakePinger{err: errors.New("refused")}, Options{}, nil, nil)
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeCounter struct {
	n   int
	err error
}

func (c fakeCounter) Count(context.Context) (int, error) { return c.n, c.err }

func TestHealth_DeepReportsIndex(t *testing.T) {
	srv := NewServer(&fakeService{}, fakePinger{}, Options{Index: fakeCounter{n: 42}}, nil, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"chunks":42}`, rec.Body.String())

	srv = NewServer(&fakeService{}, fakePinger{}, Options{Index: fakeCounter{err: errors.New("qdrant down")}}, nil, nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ok":false,"index":"qdrant down"}`, rec.Body.String())
}

func TestRecoverer(t *testing.T) {
	srv, _ := newTestServer(&fakeService{panicMsg: "kaboom"}, Options{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal error"}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(&fakeService{}, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})
	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = rec.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeService{}, Options{})
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/health"`)
}

func TestSniffPDF(t *testing.T) {
	assert.NoError(t, sniffPDF(minimalPDF()))
	assert.Error(t, sniffPDF(nil))
	assert.Error(t, sniffPDF([]byte("%PDF-1.4\n")))
}
