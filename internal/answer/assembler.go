package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
)

// SystemPrompt restricts the generator to the supplied context.
const SystemPrompt = `You are a careful RAG assistant.
Use ONLY the provided context to answer.
Always cite like [DOC i]. If answer is not in context, say "I don't know" briefly.`

// DefaultTemperature keeps answers close to the context.
const DefaultTemperature float32 = 0.2

// BuildContext renders hits as numbered citation blocks, in hit order.
func BuildContext(hits []domain.Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		var b strings.Builder
		fmt.Fprintf(&b, "[[DOC %d]]", i+1)
		md := h.Metadata
		if md.Section != "" {
			fmt.Fprintf(&b, " [Section: %s]", md.Section)
		}
		if md.PageStart != 0 && md.PageEnd != 0 {
			fmt.Fprintf(&b, " [Pages: %d-%d]", md.PageStart, md.PageEnd)
		}
		if md.Type != "" {
			fmt.Fprintf(&b, " [Type: %s]", md.Type)
		}
		b.WriteString("\n")
		b.WriteString(h.Text)
		blocks[i] = b.String()
	}
	return strings.Join(blocks, "\n\n")
}

// UserMessage combines the question with the rendered context block.
func UserMessage(question, contextBlock string) string {
	return "Question: " + question + "\n\nContext:\n" + contextBlock
}

// Assembler turns retrieved hits into a cited answer.
type Assembler struct {
	generator   domain.Generator
	temperature float32
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewAssembler(generator domain.Generator, temperature float32, m *metrics.Metrics, logger *zap.Logger) *Assembler {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{generator: generator, temperature: temperature, metrics: m, logger: logger}
}

// Answer asks the generator about question using hits as the only context.
// The returned contexts mirror hits one to one.
func (a *Assembler) Answer(ctx context.Context, question string, hits []domain.Hit) (domain.Answer, error) {
	block := BuildContext(hits)
	start := time.Now()
	text, err := a.generator.Complete(ctx, SystemPrompt, UserMessage(question, block), a.temperature)
	a.metrics.ObserveStage(metrics.StageGenerate, start, err)
	if err != nil {
		return domain.Answer{}, err
	}
	contexts := make([]domain.Context, len(hits))
	for i, h := range hits {
		contexts[i] = domain.Context{Text: h.Text, Metadata: h.Metadata}
	}
	a.logger.Debug("generated answer",
		zap.Int("contexts", len(hits)),
		zap.Int("context_chars", len(block)),
		zap.Duration("took", time.Since(start)),
	)
	return domain.Answer{Answer: strings.TrimSpace(text), Contexts: contexts}, nil
}

// Citations numbers hits for the user-facing response.
func Citations(hits []domain.Hit) []domain.Citation {
	out := make([]domain.Citation, len(hits))
	for i, h := range hits {
		out[i] = domain.Citation{Doc: i + 1, Metadata: h.Metadata, Distance: h.Distance}
	}
	return out
}
