package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfrag/internal/answer"
	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
)

type Extractor interface {
	Extract(ctx context.Context, filename string, pdf io.Reader) ([]domain.RawBlock, error)
}

type Chunker interface {
	Chunk(source string, blocks []domain.RawBlock) ([]domain.Chunk, error)
}

type Index interface {
	AddChunks(ctx context.Context, chunks []domain.Chunk, collection string) error
	SimilaritySearch(ctx context.Context, question string, k int) ([]domain.Hit, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, hits []domain.Hit) (domain.Answer, error)
}

type IngestRequest struct {
	Filename string
	Body     io.Reader
}

type IngestResult struct {
	Indexed int    `json:"indexed"`
	Source  string `json:"source"`
	Summary string `json:"summary,omitempty"`
}

type QueryResult struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
}

type Options struct {
	TopK                int
	SummaryMaxSentences int
}

// RAGService runs the ingest and query pipelines over its collaborators.
type RAGService struct {
	extractor  Extractor
	chunker    Chunker
	index      Index
	answerer   Answerer
	summarizer domain.Summarizer
	opts       Options
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewRAGService(extractor Extractor, chunker Chunker, index Index, answerer Answerer, summarizer domain.Summarizer, opts Options, m *metrics.Metrics, logger *zap.Logger) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGService{
		extractor:  extractor,
		chunker:    chunker,
		index:      index,
		answerer:   answerer,
		summarizer: summarizer,
		opts:       opts,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest extracts, chunks and indexes one PDF into the default collection.
func (s *RAGService) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	source := s.sourceName(req.Filename)
	log := s.logger.With(zap.String("source", source))

	start := time.Now()
	blocks, err := s.extractor.Extract(ctx, req.Filename, req.Body)
	s.metrics.ObserveStage(metrics.StageExtract, start, err)
	if err != nil {
		return IngestResult{}, err
	}
	log.Debug("extracted blocks", zap.Int("blocks", len(blocks)), zap.Duration("took", time.Since(start)))

	start = time.Now()
	chunks, err := s.chunker.Chunk(source, blocks)
	s.metrics.ObserveStage(metrics.StageChunk, start, err)
	if err != nil {
		return IngestResult{}, err
	}

	if err := s.index.AddChunks(ctx, chunks, ""); err != nil {
		return IngestResult{}, err
	}

	res := IngestResult{Indexed: len(chunks), Source: source}
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(summaryText(chunks), s.opts.SummaryMaxSentences)
		if err != nil {
			// the document is already indexed
			log.Warn("summarize failed", zap.Error(err))
		}
		res.Summary = summary
	}
	log.Info("ingested document", zap.Int("chunks", res.Indexed))
	return res, nil
}

// Query answers question from the top k chunks of the default collection.
func (s *RAGService) Query(ctx context.Context, question string) (QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return QueryResult{}, domain.NewValidationError("Invalid body", "question", "must not be empty")
	}
	hits, err := s.index.SimilaritySearch(ctx, question, s.opts.TopK)
	if err != nil {
		return QueryResult{}, err
	}
	ans, err := s.answerer.Answer(ctx, question, hits)
	if err != nil {
		return QueryResult{}, err
	}
	s.logger.Info("answered question", zap.Int("hits", len(hits)))
	return QueryResult{Answer: ans.Answer, Citations: answer.Citations(hits)}, nil
}

// sourceName strips a .pdf extension from the base filename, falling back to
// a timestamped name.
func (s *RAGService) sourceName(filename string) string {
	name := strings.TrimSpace(filepath.Base(filename))
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".pdf") {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Sprintf("pdf-%d", s.now().UnixMilli())
	}
	return name
}

func summaryText(chunks []domain.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Metadata.Type == domain.ChunkText {
			parts = append(parts, ch.Text)
		}
	}
	return strings.Join(parts, "\n")
}
