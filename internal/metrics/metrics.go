package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage labels.
const (
	StageExtract  = "extract"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageIndex    = "index"
	StageSearch   = "search"
	StageGenerate = "generate"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	ChunksIndexed *prometheus.CounterVec
	EmbedCache    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Name:      "stage_duration_seconds",
			Help:      "Latency of ingestion and query pipeline stages.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "stage_errors_total",
			Help:      "Failed pipeline stages.",
		}, []string{"stage"}),
		ChunksIndexed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index by chunk type.",
		}, []string{"type"}),
		EmbedCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
}

// ObserveStage records the duration of a stage that started at start.
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// AddChunks counts indexed chunks of one type.
func (m *Metrics) AddChunks(chunkType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksIndexed.WithLabelValues(chunkType).Add(float64(n))
}

// CacheLookups counts embedding cache hits and misses.
func (m *Metrics) CacheLookups(hits, misses int) {
	if m == nil {
		return
	}
	if hits > 0 {
		m.EmbedCache.WithLabelValues("hit").Add(float64(hits))
	}
	if misses > 0 {
		m.EmbedCache.WithLabelValues("miss").Add(float64(misses))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
