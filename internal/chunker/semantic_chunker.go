package chunker

import (
	"fmt"

	"go.uber.org/zap"

	"pdfrag/internal/domain"
)

// SemanticChunker turns extracted blocks into retrieval chunks. Atomic blocks
// (tables, figures, equations) come first, one chunk each, followed by the
// windowed paragraph groups. All chunks share one ordinal counter.
type SemanticChunker struct {
	maxSize int
	overlap int
	logger  *zap.Logger
}

func NewSemanticChunker(maxSize, overlap int, logger *zap.Logger) *SemanticChunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemanticChunker{maxSize: maxSize, overlap: overlap, logger: logger}
}

// Chunk builds the chunk list for one source document. It returns
// domain.ErrEmptyContent when the blocks yield nothing to index.
func (c *SemanticChunker) Chunk(source string, blocks []domain.RawBlock) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	skipped := 0

	for _, b := range blocks {
		if !b.Type.IsAtomic() {
			if b.Type != domain.BlockParagraph {
				skipped++
			}
			continue
		}
		kind, _ := b.Type.ChunkType()
		chunks = append(chunks, domain.Chunk{
			ID:   domain.ChunkID(source, kind, len(chunks)),
			Text: b.Text,
			Metadata: domain.ChunkMetadata{
				Source:    source,
				Section:   b.Section,
				PageStart: b.PageNumber,
				PageEnd:   b.PageNumber,
				Type:      kind,
				Caption:   b.Caption,
			},
		})
	}
	atomic := len(chunks)

	groups := GroupParagraphs(blocks)
	for gi, g := range groups {
		windows, err := Windows(g.Text, c.maxSize, c.overlap)
		if err != nil {
			return nil, fmt.Errorf("chunk group %d of %s: %w", gi, source, err)
		}
		first, last := g.PageRange()
		for _, w := range windows {
			chunks = append(chunks, domain.Chunk{
				ID:   domain.ChunkID(source, domain.ChunkText, len(chunks)),
				Text: w.Text,
				Metadata: domain.ChunkMetadata{
					Source:    source,
					Section:   g.Section,
					PageStart: first,
					PageEnd:   last,
					Type:      domain.ChunkText,
				},
			})
		}
	}

	c.logger.Debug("chunked document",
		zap.String("source", source),
		zap.Int("blocks", len(blocks)),
		zap.Int("groups", len(groups)),
		zap.Int("atomic", atomic),
		zap.Int("text", len(chunks)-atomic),
		zap.Int("skipped", skipped),
	)
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyContent
	}
	return chunks, nil
}
