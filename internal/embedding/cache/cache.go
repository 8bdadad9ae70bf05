package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
)

// Config configures the Redis embedding cache.
type Config struct {
	Model     string
	TTL       time.Duration
	KeyPrefix string
}

// Embedder caches vectors of the wrapped embedder in Redis. Redis failures
// are logged and the call falls through to the wrapped embedder.
type Embedder struct {
	next    domain.Embedder
	rdb     *redis.Client
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRedisClient opens a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func New(next domain.Embedder, rdb *redis.Client, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Embedder {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pdfrag:emb:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{next: next, rdb: rdb, cfg: cfg, metrics: m, logger: logger}
}

func (e *Embedder) Name() string { return e.next.Name() }

func (e *Embedder) Dimension() int { return e.next.Dimension() }

// Embed serves cached vectors and sends the misses to the wrapped embedder in
// one call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = e.key(t)
	}

	out := make([][]float32, len(texts))
	vals, err := e.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		e.logger.Warn("embedding cache read failed", zap.Error(err))
		vals = nil
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if vec, ok := decode(s); ok {
			out[i] = vec
		}
	}

	var missIdx []int
	var missTexts []string
	for i := range out {
		if out[i] == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	e.metrics.CacheLookups(len(texts)-len(missIdx), len(missIdx))
	if len(missIdx) == 0 {
		return out, nil
	}

	fresh, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: %d texts, %d vectors", domain.ErrEmbeddingMismatch, len(missTexts), len(fresh))
	}
	pipe := e.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encode(fresh[j]), e.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		e.logger.Warn("embedding cache write failed", zap.Int("vectors", len(missIdx)), zap.Error(err))
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return e.cfg.KeyPrefix + e.next.Name() + ":" + e.cfg.Model + ":" + hex.EncodeToString(sum[:])
}

func encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decode(s string) ([]float32, bool) {
	if len(s) == 0 || len(s)%4 != 0 {
		return nil, false
	}
	b := []byte(s)
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
