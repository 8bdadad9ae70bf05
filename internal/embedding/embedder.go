package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
)

// EmbedOne embeds a single text and returns its vector.
func EmbedOne(ctx context.Context, e domain.Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%s: %w: no vector returned", e.Name(), domain.ErrEmbeddingMismatch)
	}
	return vecs[0], nil
}

// Validate checks a provider response against its request: one non-empty
// vector per text, all of one dimension.
func Validate(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: %d texts, %d vectors", domain.ErrEmbeddingMismatch, len(texts), len(vectors))
	}
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", domain.ErrEmbeddingMismatch, i)
		}
		if dim >= 0 && len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrEmbeddingMismatch, i, len(v), dim)
		}
		dim = len(v)
	}
	return nil
}

// Instrumented records latency and failures of the wrapped embedder.
type Instrumented struct {
	next    domain.Embedder
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewInstrumented(next domain.Embedder, m *metrics.Metrics, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{next: next, metrics: m, logger: logger}
}

func (e *Instrumented) Name() string { return e.next.Name() }

func (e *Instrumented) Dimension() int { return e.next.Dimension() }

// Embed forwards to the wrapped embedder and validates what comes back.
func (e *Instrumented) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	vecs, err := e.next.Embed(ctx, texts)
	if err == nil {
		err = Validate(texts, vecs)
	}
	e.metrics.ObserveStage(metrics.StageEmbed, start, err)
	if err != nil {
		var ue *domain.UpstreamError
		if !errors.As(err, &ue) {
			err = &domain.UpstreamError{Service: "embedding/" + e.next.Name(), Err: err}
		}
		e.logger.Warn("embedding failed", zap.String("provider", e.next.Name()), zap.Int("texts", len(texts)), zap.Error(err))
		return nil, err
	}
	e.logger.Debug("embedded texts",
		zap.String("provider", e.next.Name()),
		zap.Int("texts", len(texts)),
		zap.Duration("took", time.Since(start)),
	)
	return vecs, nil
}
