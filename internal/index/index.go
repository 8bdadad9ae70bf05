package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/metrics"
	"pdfrag/internal/vectorstore"
)

// createTimeout bounds a shared collection creation, which outlives the
// caller that started it.
const createTimeout = 30 * time.Second

// Index embeds chunks and keeps them in named collections of a vector store.
type Index struct {
	store       vectorstore.Storage
	embedder    domain.Embedder
	defaultName string
	metrics     *metrics.Metrics
	logger      *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	ready map[string]struct{}
}

// Collection is a handle on one named collection.
type Collection struct {
	name string
	idx  *Index
}

func New(store vectorstore.Storage, embedder domain.Embedder, defaultCollection string, m *metrics.Metrics, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		store:       store,
		embedder:    embedder,
		defaultName: defaultCollection,
		metrics:     m,
		logger:      logger,
		ready:       map[string]struct{}{},
	}
}

// DefaultCollection is the name used when callers pass an empty one.
func (i *Index) DefaultCollection() string { return i.defaultName }

// GetOrCreateCollection returns the named collection, creating it on first
// use. Concurrent calls for the same name share one creation request.
func (i *Index) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		name = i.defaultName
	}
	i.mu.Lock()
	_, ok := i.ready[name]
	i.mu.Unlock()
	if ok {
		return &Collection{name: name, idx: i}, nil
	}

	_, err, _ := i.group.Do(name, func() (any, error) {
		// other callers wait on this result, so the first caller's
		// cancellation must not fail them
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		return nil, i.store.EnsureCollection(cctx, name, i.embedder.Dimension())
	})
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	i.mu.Lock()
	i.ready[name] = struct{}{}
	i.mu.Unlock()
	return &Collection{name: name, idx: i}, nil
}

// forget drops name from the ready cache when the store no longer has it,
// so the next call re-creates the collection.
func (i *Index) forget(name string, err error) {
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		return
	}
	i.mu.Lock()
	delete(i.ready, name)
	i.mu.Unlock()
	i.logger.Warn("collection disappeared from store", zap.String("collection", name))
}

// Count returns the number of entries in the default collection.
func (i *Index) Count(ctx context.Context) (int, error) {
	c, err := i.GetOrCreateCollection(ctx, i.defaultName)
	if err != nil {
		return 0, err
	}
	return c.Count(ctx)
}

// AddChunks embeds and stores chunks in the named (or default) collection.
func (i *Index) AddChunks(ctx context.Context, chunks []domain.Chunk, collection string) error {
	c, err := i.GetOrCreateCollection(ctx, collection)
	if err != nil {
		return err
	}
	return c.Add(ctx, chunks)
}

// SimilaritySearch embeds question and returns the k closest chunks of the
// default collection.
func (i *Index) SimilaritySearch(ctx context.Context, question string, k int) ([]domain.Hit, error) {
	c, err := i.GetOrCreateCollection(ctx, i.defaultName)
	if err != nil {
		return nil, err
	}
	vec, err := embedding.EmbedOne(ctx, i.embedder, question)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, vec, k)
}

func (c *Collection) Name() string { return c.name }

// Add embeds all chunk texts in one batch and writes them. Nothing is written
// if embedding fails.
func (c *Collection) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for j, ch := range chunks {
		texts[j] = ch.Text
	}
	vectors, err := c.idx.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if err := embedding.Validate(texts, vectors); err != nil {
		return err
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for j, ch := range chunks {
		entries[j] = domain.IndexEntry{
			ID:       ch.ID,
			Vector:   vectors[j],
			Document: ch.Text,
			Metadata: ch.Metadata.Map(),
		}
	}
	start := time.Now()
	err = c.idx.store.Upsert(ctx, c.name, entries)
	c.idx.metrics.ObserveStage(metrics.StageIndex, start, err)
	if err != nil {
		c.idx.forget(c.name, err)
		return fmt.Errorf("write %d entries to %s: %w", len(entries), c.name, err)
	}
	counts := map[domain.ChunkType]int{}
	for _, ch := range chunks {
		counts[ch.Metadata.Type]++
	}
	for t, n := range counts {
		c.idx.metrics.AddChunks(string(t), n)
	}
	c.idx.logger.Info("indexed chunks", zap.String("collection", c.name), zap.Int("chunks", len(chunks)))
	return nil
}

// Query returns at most k hits in ascending distance order.
func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	start := time.Now()
	hits, err := c.idx.store.Query(ctx, c.name, vector, k)
	c.idx.metrics.ObserveStage(metrics.StageSearch, start, err)
	if err != nil {
		c.idx.forget(c.name, err)
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of entries in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	n, err := c.idx.store.Count(ctx, c.name)
	if err != nil {
		c.idx.forget(c.name, err)
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}
