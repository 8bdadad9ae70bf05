package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStage(StageEmbed, time.Now(), nil)
	m.ObserveStage(StageEmbed, time.Now(), errors.New("boom"))
	m.AddChunks("text", 3)
	m.AddChunks("table", 0)
	m.CacheLookups(2, 1)
	m.ObserveHTTP("POST", "/api/query", "200", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues(StageEmbed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksIndexed.WithLabelValues("text")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbedCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbedCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/query", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage(StageChunk, time.Now(), errors.New("x"))
		m.AddChunks("text", 1)
		m.CacheLookups(1, 1)
		m.ObserveHTTP("GET", "/health", "200", 0)
	})
}
