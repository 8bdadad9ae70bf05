package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ledongthuc/pdf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
	"pdfrag/internal/service"
)

// Service is the pipeline the handlers drive.
type Service interface {
	Ingest(ctx context.Context, req service.IngestRequest) (service.IngestResult, error)
	Query(ctx context.Context, question string) (service.QueryResult, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports how many entries the default collection holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Options struct {
	// Index, when set, is checked by /health?deep=1.
	Index          Counter
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	// MetricsHandler serves /metrics; nil disables the route.
	MetricsHandler http.Handler
}

type Server struct {
	svc       Service
	extractor Pinger
	opts      Options
	logger    *zap.Logger
	router    *mux.Router
}

func NewServer(svc Service, extractor Pinger, opts Options, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	s := &Server{svc: svc, extractor: extractor, opts: opts, logger: logger, router: mux.NewRouter()}

	s.router.Use(requestID, accessLog(logger, m), recoverer(logger))
	if opts.RateLimitRPS > 0 {
		s.router.Use(newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).middleware)
	}
	for _, prefix := range []string{"", "/api"} {
		s.router.HandleFunc(prefix+"/upload", s.handleUpload).Methods(http.MethodPost)
		s.router.HandleFunc(prefix+"/query", s.handleQuery).Methods(http.MethodPost)
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		s.router.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}
	return s
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler { return promhttp.Handler() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, s.logger, err)
			return
		}
		writeError(w, s.logger, domain.NewValidationError("Please upload a PDF file", "file", "missing multipart file field"))
		return
	}
	defer file.Close()

	mediaType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if mediaType != "application/pdf" {
		writeError(w, s.logger, domain.NewValidationError("Please upload a PDF file", "file", "content type must be application/pdf"))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := sniffPDF(data); err != nil {
		writeError(w, s.logger, domain.NewValidationError("Please upload a PDF file", "file", err.Error()))
		return
	}

	res, err := s.svc.Ingest(r.Context(), service.IngestRequest{Filename: header.Filename, Body: bytes.NewReader(data)})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, s.logger, domain.NewValidationError("Invalid body", "", "body must be a JSON object"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, s.logger, domain.NewValidationError("Invalid body", "question", "must not be empty"))
		return
	}
	res, err := s.svc.Query(r.Context(), req.Question)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if res.Citations == nil {
		res.Citations = []domain.Citation{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") != "1" {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	body := map[string]any{"ok": true}
	if s.extractor != nil {
		if err := s.extractor.Ping(r.Context()); err != nil {
			s.logger.Warn("extractor health check failed", zap.Error(err))
			body["ok"] = false
			body["extractor"] = err.Error()
		}
	}
	if s.opts.Index != nil {
		n, err := s.opts.Index.Count(r.Context())
		if err != nil {
			s.logger.Warn("index health check failed", zap.Error(err))
			body["ok"] = false
			body["index"] = err.Error()
		} else {
			body["chunks"] = n
		}
	}
	status := http.StatusOK
	if body["ok"] == false {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// sniffPDF parses the cross-reference table to reject files that are not PDFs.
func sniffPDF(data []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unreadable pdf: %v", p)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("unreadable pdf: %w", err)
	}
	if rd.NumPage() == 0 {
		return errors.New("pdf has no pages")
	}
	return nil
}
